package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/communityroots/resource-cli/pkg/anthropic"
)

func TestJudgeConsistency_Pass(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" && len(req.Messages) == 1
	})).Return(textResponse(
		`{"consistent": true, "confidence": 0.85, "evidence": "Page names the shelter and lists overnight beds."}`,
		1200, 45), nil)

	j := New(client)
	res, err := j.JudgeConsistency(context.Background(), ConsistencyRequest{
		Name:     "Harbor Light Shelter",
		Services: []string{"emergency shelter"},
		PageText: "Harbor Light Shelter provides overnight beds...",
	})
	require.NoError(t, err)
	assert.True(t, res.Pass)
	assert.InDelta(t, 0.85, res.Confidence, 0.0001)
	assert.Equal(t, int64(1200), res.InputTokens)
	assert.Equal(t, int64(45), res.OutputTokens)
	client.AssertExpectations(t)
}

func TestJudgeConsistency_FencedJSON(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(
		"```json\n{\"consistent\": false, \"confidence\": 0.9, \"evidence\": \"Domain is parked.\"}\n```",
		800, 30), nil)

	j := New(client)
	res, err := j.JudgeConsistency(context.Background(), ConsistencyRequest{Name: "Anything"})
	require.NoError(t, err)
	assert.False(t, res.Pass)
	assert.Equal(t, "Domain is parked.", res.Evidence)
}

func TestJudgeConsistency_ConfidenceClamped(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(
		`{"consistent": true, "confidence": 1.7, "evidence": "x"}`, 10, 10), nil)

	j := New(client)
	res, err := j.JudgeConsistency(context.Background(), ConsistencyRequest{Name: "Anything"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Confidence, 0.0001)
}

func TestJudgeConsistency_UnparseableResponse(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("I cannot judge this.", 10, 10), nil)

	j := New(client)
	_, err := j.JudgeConsistency(context.Background(), ConsistencyRequest{Name: "Anything"})
	require.Error(t, err)
}

func TestJudgeConsistency_APIError(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))

	j := New(client)
	_, err := j.JudgeConsistency(context.Background(), ConsistencyRequest{Name: "Anything"})
	require.Error(t, err)
}

func TestRepairURL_Suggestion(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(
		`{"url": "https://www.harborlight.org", "reason": "https plus www variant of the recorded domain"}`,
		400, 25), nil)

	j := New(client, WithModel("claude-sonnet-4-5-20250929"))
	res, err := j.RepairURL(context.Background(), RepairRequest{
		Name: "Harbor Light Shelter", City: "Portland", State: "OR",
		BrokenURL: "http://harborlight.org",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://www.harborlight.org", res.SuggestedURL)
	client.AssertExpectations(t)
}

func TestRepairURL_NoSuggestion(t *testing.T) {
	client := new(mockAnthropicClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(
		`{"url": "", "reason": "no confident replacement"}`, 400, 15), nil)

	j := New(client)
	res, err := j.RepairURL(context.Background(), RepairRequest{Name: "Anything", BrokenURL: "http://gone.example"})
	require.NoError(t, err)
	assert.Empty(t, res.SuggestedURL)
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding prose", `Sure, here it is: {"a": 1} hope that helps`, `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

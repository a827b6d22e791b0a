package judge

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/communityroots/resource-cli/pkg/anthropic"
)

// mockAnthropicClient is a testify mock for anthropic.Client.
type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// textResponse builds a single-text-block response with token usage.
func textResponse(text string, in, out int64) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: in, OutputTokens: out},
	}
}

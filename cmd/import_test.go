package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityroots/resource-cli/internal/config"
	"github.com/communityroots/resource-cli/internal/mapper"
	"github.com/communityroots/resource-cli/internal/model"
)

const testMappingYAML = `
source_name: findhelp
display_name: FindHelp
field_map:
  name: name
  address1: address
  city: city
  location.state: state
category_map:
  "*": food_assistance
verification_level: L2
`

// writeMapping writes a mapping config under dir and points the global config
// at it.
func writeMapping(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "findhelp.yaml"), []byte(testMappingYAML), 0o644))
	cfg = &config.Config{}
	cfg.Import.MappingDir = dir
	t.Cleanup(func() { cfg = nil })
}

func TestLoadMapping_ByName(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir)

	mapping, err := loadMapping("findhelp")
	require.NoError(t, err)
	assert.Equal(t, "findhelp", mapping.SourceName)
	assert.Equal(t, model.LevelPartial, mapping.VerificationLevel)
}

func TestLoadMapping_ByPath(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir)

	mapping, err := loadMapping(filepath.Join(dir, "findhelp.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "findhelp", mapping.SourceName)
}

func TestLoadMapping_MissingName(t *testing.T) {
	_, err := loadMapping("")
	assert.Error(t, err)
}

func TestFilterByState(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir)
	mapping, err := loadMapping("findhelp")
	require.NoError(t, err)

	records := []map[string]any{
		{"name": "A", "location": map[string]any{"state": "OR"}},
		{"name": "B", "location": map[string]any{"state": "wa"}},
		{"name": "C", "location": map[string]any{"state": " or "}},
		{"name": "D"}, // no state field, kept for normalization to report
	}

	kept := filterByState(records, mapping, "or")
	require.Len(t, kept, 3)
	assert.Equal(t, "A", kept[0]["name"])
	assert.Equal(t, "C", kept[1]["name"])
	assert.Equal(t, "D", kept[2]["name"])
}

// fakeAgent satisfies importer.Verifier for worker tests.
type fakeAgent struct {
	calls   int
	result  *model.VerificationResult
	lastRun model.RunType
}

func (f *fakeAgent) Verify(_ context.Context, _ *model.NormalizedResource, runType model.RunType) (*model.VerificationResult, error) {
	f.calls++
	f.lastRun = runType
	return f.result, nil
}

func TestHandleVerifyRequest(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir)
	st := newTestStore(t)

	agent := &fakeAgent{result: &model.VerificationResult{
		OverallScore: 0.9,
		Checks:       map[string]model.CheckResult{},
		Decision:     model.DecisionAutoApprove,
		RunType:      model.RunTypeTriggered,
	}}

	req := verifyRequest{
		Source: "findhelp",
		Record: map[string]any{
			"name":     "Portland Food Pantry",
			"address1": "100 Main St",
			"city":     "Portland",
			"location": map[string]any{"state": "OR"},
		},
		RunType: string(model.RunTypeTriggered),
	}

	err := handleVerifyRequest(context.Background(), req, agent, st)
	require.NoError(t, err)
	assert.Equal(t, 1, agent.calls)
	assert.Equal(t, model.RunTypeTriggered, agent.lastRun)
}

func TestHandleVerifyRequest_NormalizationError(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir)
	st := newTestStore(t)
	agent := &fakeAgent{}

	req := verifyRequest{
		Source: "findhelp",
		Record: map[string]any{"name": "Missing Everything Else"},
	}

	err := handleVerifyRequest(context.Background(), req, agent, st)
	require.Error(t, err)
	assert.Zero(t, agent.calls)
}

// Guard against drift between the mapping fixture and the mapper's required
// field set.
func TestMappingFixtureNormalizes(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir)
	mapping, err := loadMapping("findhelp")
	require.NoError(t, err)

	res, err := mapper.Normalize(map[string]any{
		"name":     "Salem Shelter",
		"address1": "2 Oak Ave",
		"city":     "Salem",
		"location": map[string]any{"state": "OR"},
	}, mapping)
	require.NoError(t, err)
	assert.Equal(t, "Salem Shelter", res.Name)
	assert.Equal(t, "OR", res.State)
}

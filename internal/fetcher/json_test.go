package fetcher

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedEntry struct {
	Name string `json:"name"`
	City string `json:"city"`
}

func drainFeed(t *testing.T, ch <-chan feedEntry, errCh <-chan error) ([]feedEntry, error) {
	t.Helper()
	var entries []feedEntry
	for e := range ch {
		entries = append(entries, e)
	}
	for err := range errCh {
		if err != nil {
			return entries, err
		}
	}
	return entries, nil
}

func TestDecodeJSONArray_BareArray(t *testing.T) {
	input := `[{"name":"Neighborhood House","city":"Portland"},{"name":"Mid-Valley Pantry","city":"Salem"}]`

	ch, errCh := DecodeJSONArray[feedEntry](context.Background(), strings.NewReader(input))
	entries, err := drainFeed(t, ch, errCh)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "Neighborhood House", entries[0].Name)
	assert.Equal(t, "Salem", entries[1].City)
}

func TestDecodeJSONArray_ResultsEnvelope(t *testing.T) {
	// Findhelp-style API page: pagination fields around a "results" array.
	input := `{"page":1,"total":2,"links":{"next":null},
		"results":[{"name":"Tri-County Health Van","city":"Gresham"},{"name":"Family Promise","city":"Beaverton"}]}`

	ch, errCh := DecodeJSONArray[feedEntry](context.Background(), strings.NewReader(input))
	entries, err := drainFeed(t, ch, errCh)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "Tri-County Health Van", entries[0].Name)
	assert.Equal(t, "Family Promise", entries[1].Name)
}

func TestDecodeJSONArray_DataEnvelope(t *testing.T) {
	input := `{"meta":{"generated":"2026-08-01"},"data":[{"name":"Casa de Apoyo","city":"Woodburn"}]}`

	ch, errCh := DecodeJSONArray[feedEntry](context.Background(), strings.NewReader(input))
	entries, err := drainFeed(t, ch, errCh)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "Casa de Apoyo", entries[0].Name)
}

func TestDecodeJSONArray_EnvelopeWithoutRecordArray(t *testing.T) {
	input := `{"error":"rate limit exceeded","retry_after":30}`

	ch, errCh := DecodeJSONArray[feedEntry](context.Background(), strings.NewReader(input))
	_, err := drainFeed(t, ch, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no record array")
}

func TestDecodeJSONArray_EmptyArray(t *testing.T) {
	ch, errCh := DecodeJSONArray[feedEntry](context.Background(), strings.NewReader(`[]`))
	entries, err := drainFeed(t, ch, errCh)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDecodeJSONArray_EmptyInput(t *testing.T) {
	ch, errCh := DecodeJSONArray[feedEntry](context.Background(), strings.NewReader(""))
	entries, err := drainFeed(t, ch, errCh)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDecodeJSONArray_ScalarInput(t *testing.T) {
	ch, errCh := DecodeJSONArray[feedEntry](context.Background(), strings.NewReader(`42`))
	_, err := drainFeed(t, ch, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected array or envelope")
}

func TestDecodeJSONArray_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("[")
	for i := range 10000 {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"name":"Seed Entry","city":"Bend"}`)
	}
	sb.WriteString("]")

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(5 * time.Millisecond)

	ch, errCh := DecodeJSONArray[feedEntry](ctx, strings.NewReader(sb.String()))
	for range ch { //nolint:revive // drain
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr != nil {
		assert.Contains(t, gotErr.Error(), "context")
	}
}

func TestDecodeJSONObject(t *testing.T) {
	rec, err := DecodeJSONObject[feedEntry](strings.NewReader(`{"name":"Uplift Center","city":"Hood River"}`))
	require.NoError(t, err)
	assert.Equal(t, "Uplift Center", rec.Name)
	assert.Equal(t, "Hood River", rec.City)
}

func TestDecodeJSONObject_Invalid(t *testing.T) {
	_, err := DecodeJSONObject[feedEntry](strings.NewReader(`not json`))
	require.Error(t, err)
}

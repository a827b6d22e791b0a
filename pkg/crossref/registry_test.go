package crossref

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceRegistry_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organizations", r.URL.Path)
		assert.Equal(t, "Harbor Light Shelter", r.URL.Query().Get("query"))
		assert.Equal(t, "Portland", r.URL.Query().Get("city"))
		assert.Equal(t, "secret", r.Header.Get("Api-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"contents": [
				{
					"name": "Harbor Light Shelter",
					"url": "https://registry.example.org/orgs/123",
					"status": "active",
					"locations": [{
						"addresses": [{"address_1": "456 Dock St", "city": "Portland", "state_province": "OR"}],
						"phones": [{"number": "503-555-0142"}]
					}]
				}
			]
		}`)
	}))
	defer srv.Close()

	src := NewServiceRegistry(srv.URL, "secret")
	match, err := src.Lookup(context.Background(), Query{
		Name: "Harbor Light Shelter", City: "Portland", State: "OR",
	})
	require.NoError(t, err)
	assert.True(t, match.Found)
	assert.Equal(t, "Harbor Light Shelter", match.Data["name"])
	assert.Equal(t, "456 Dock St, Portland, OR", match.Data["address"])
	assert.Equal(t, "503-555-0142", match.Data["phone"])
	assert.Equal(t, "active", match.Data["status"])
	assert.Equal(t, "https://registry.example.org/orgs/123", match.URL)
}

func TestServiceRegistry_EmptyContents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"contents": []}`)
	}))
	defer srv.Close()

	src := NewServiceRegistry(srv.URL, "")
	match, err := src.Lookup(context.Background(), Query{Name: "Harbor Light Shelter"})
	require.NoError(t, err)
	assert.False(t, match.Found)
	assert.Zero(t, match.MatchScore)
}

func TestServiceRegistry_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewServiceRegistry(srv.URL, "wrong")
	_, err := src.Lookup(context.Background(), Query{Name: "Anything"})
	require.Error(t, err)
}

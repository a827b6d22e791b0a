package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityroots/resource-cli/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func TestDetectConflicts_NoDataNoConflicts(t *testing.T) {
	cand := &model.NormalizedResource{Name: "Harbor Light Shelter"}
	assert.Empty(t, detectConflicts(cand, "src", nil))
}

func TestDetectConflicts_EquivalentFormattingIgnored(t *testing.T) {
	cand := &model.NormalizedResource{
		Name:    "St. Vincent's Food Pantry",
		Address: "456 Dock St",
		City:    "Portland",
		State:   "OR",
		Phone:   "(503) 555-0142",
		Website: "http://stvincents.org/about",
	}
	data := map[string]string{
		"name":    "st vincents food pantry",
		"address": "456 DOCK ST, PORTLAND, OR",
		"phone":   "503-555-0142",
		"website": "https://www.stvincents.org",
		"status":  "OPERATIONAL",
	}
	assert.Empty(t, detectConflicts(cand, "src", data))
}

func TestDetectConflicts_PhoneMismatch(t *testing.T) {
	cand := &model.NormalizedResource{Phone: "(503) 555-0142"}
	data := map[string]string{"phone": "(503) 555-9999"}

	conflicts := detectConflicts(cand, "google_places", data)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "phone", conflicts[0].Field)
	assert.Equal(t, "google_places", conflicts[0].SourceName)
	assert.InDelta(t, confPhoneMismatch, conflicts[0].Confidence, 0.0001)
}

func TestDetectConflicts_CoordinatesWithinTolerance(t *testing.T) {
	cand := &model.NormalizedResource{
		Latitude:  floatPtr(45.5231),
		Longitude: floatPtr(-122.6765),
	}
	data := map[string]string{"latitude": "45.5235", "longitude": "-122.6762"}
	assert.Empty(t, detectConflicts(cand, "src", data))
}

func TestDetectConflicts_CoordinatesBeyondTolerance(t *testing.T) {
	cand := &model.NormalizedResource{
		Latitude:  floatPtr(45.5231),
		Longitude: floatPtr(-122.6765),
	}
	data := map[string]string{"latitude": "45.6000", "longitude": "-122.6765"}

	conflicts := detectConflicts(cand, "src", data)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "coordinates", conflicts[0].Field)
}

func TestDetectConflicts_ClosedStatus(t *testing.T) {
	cand := &model.NormalizedResource{Name: "Anything"}
	data := map[string]string{"status": "CLOSED_PERMANENTLY"}

	conflicts := detectConflicts(cand, "google_places", data)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "status", conflicts[0].Field)
	assert.InDelta(t, confClosedStatus, conflicts[0].Confidence, 0.0001)
}

func TestDetectConflicts_NameMismatch(t *testing.T) {
	cand := &model.NormalizedResource{Name: "Harbor Light Shelter"}
	data := map[string]string{"name": "Downtown Pet Grooming"}

	conflicts := detectConflicts(cand, "src", data)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "name", conflicts[0].Field)
	assert.Equal(t, "Harbor Light Shelter", conflicts[0].ClaimedValue)
	assert.Equal(t, "Downtown Pet Grooming", conflicts[0].ObservedValue)
}

func TestHostEqual(t *testing.T) {
	assert.True(t, hostEqual("http://example.org", "https://www.example.org/contact?x=1"))
	assert.False(t, hostEqual("http://example.org", "http://other.org"))
}

package verify

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"

	"github.com/communityroots/resource-cli/internal/model"
)

// coordTolerance is the lat/lng delta below which coordinates are equal.
// 0.001 degrees is roughly a city block.
const coordTolerance = 0.001

// Conflict confidences express how material each kind of mismatch is.
// A phone mismatch is almost certainly a real error; a website mismatch
// often just means a redirect or a subpage.
const (
	confNameMismatch    = 0.75
	confAddressMismatch = 0.6
	confPhoneMismatch   = 0.8
	confWebsiteMismatch = 0.5
	confCoordMismatch   = 0.7
	confClosedStatus    = 0.9
)

// detectConflicts compares each field the external source reported against
// the candidate's claimed value with type-aware equality.
func detectConflicts(cand *model.NormalizedResource, sourceName string, data map[string]string) []model.FieldConflict {
	var out []model.FieldConflict

	add := func(field, claimed, observed string, confidence float64) {
		out = append(out, model.FieldConflict{
			Field:         field,
			ClaimedValue:  claimed,
			ObservedValue: observed,
			SourceName:    sourceName,
			Confidence:    confidence,
		})
	}

	if observed := data["name"]; observed != "" && cand.Name != "" {
		if !looseEqual(cand.Name, observed) {
			add("name", cand.Name, observed, confNameMismatch)
		}
	}

	if observed := data["address"]; observed != "" && cand.Address != "" {
		// Observed addresses usually carry city/state/zip; compare against
		// the candidate's full address and accept containment either way.
		if !addressEqual(cand.FullAddress(), observed) {
			add("address", cand.FullAddress(), observed, confAddressMismatch)
		}
	}

	if observed := data["phone"]; observed != "" && cand.Phone != "" {
		if !phoneEqual(cand.Phone, observed) {
			add("phone", cand.Phone, observed, confPhoneMismatch)
		}
	}

	if observed := data["website"]; observed != "" && cand.Website != "" {
		if !hostEqual(cand.Website, observed) {
			add("website", cand.Website, observed, confWebsiteMismatch)
		}
	}

	if lat, lng, ok := observedCoords(data); ok && cand.Latitude != nil && cand.Longitude != nil {
		if math.Abs(*cand.Latitude-lat) > coordTolerance || math.Abs(*cand.Longitude-lng) > coordTolerance {
			add("coordinates",
				formatCoords(*cand.Latitude, *cand.Longitude),
				formatCoords(lat, lng),
				confCoordMismatch)
		}
	}

	if status := strings.ToUpper(data["status"]); status != "" {
		if strings.Contains(status, "CLOSED") || status == "INACTIVE" || status == "DEFUNCT" {
			add("status", "active listing", data["status"], confClosedStatus)
		}
	}

	return out
}

// looseEqual compares strings ignoring case, punctuation, and whitespace.
func looseEqual(a, b string) bool {
	return foldLoose(a) == foldLoose(b)
}

// addressEqual treats addresses as equal when their folded forms match or
// one contains the other (external sources append city/state/zip).
func addressEqual(a, b string) bool {
	fa, fb := foldLoose(a), foldLoose(b)
	if fa == "" || fb == "" {
		return true
	}
	return fa == fb || strings.Contains(fa, fb) || strings.Contains(fb, fa)
}

// phoneEqual compares national significant numbers, falling back to a
// digits-only comparison for unparseable values.
func phoneEqual(a, b string) bool {
	na, errA := phonenumbers.Parse(a, "US")
	nb, errB := phonenumbers.Parse(b, "US")
	if errA == nil && errB == nil {
		return phonenumbers.GetNationalSignificantNumber(na) == phonenumbers.GetNationalSignificantNumber(nb)
	}
	return digitsOnly(a) == digitsOnly(b)
}

// hostEqual compares website URLs by host, ignoring scheme, www, and path.
func hostEqual(a, b string) bool {
	return urlHost(a) == urlHost(b)
}

func urlHost(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, "www.")
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

func observedCoords(data map[string]string) (float64, float64, bool) {
	latStr, lngStr := data["latitude"], data["longitude"]
	if latStr == "" || lngStr == "" {
		return 0, 0, false
	}
	lat, errA := strconv.ParseFloat(latStr, 64)
	lng, errB := strconv.ParseFloat(lngStr, 64)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

func formatCoords(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lng, 'f', 6, 64)
}

func foldLoose(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Package crossref looks up resources in external directories to confirm
// they exist independently of the import source.
package crossref

import (
	"context"
	"strings"
	"unicode"
)

// Source is one external directory that can be consulted for a resource.
type Source interface {
	// Name identifies the source in verification evidence.
	Name() string

	// Lookup searches the source for the queried resource.
	// A resource absent from the source is Found=false, not an error.
	Lookup(ctx context.Context, q Query) (*Match, error)
}

// Query identifies the resource to look up.
type Query struct {
	Name    string
	Address string
	City    string
	State   string
}

// Match is the outcome of a lookup against one source.
type Match struct {
	Found      bool
	MatchScore float64 // 0.0-1.0 name similarity of the best candidate
	URL        string  // canonical URL of the matched entry, if any
	// Data holds the observed field values from the source, keyed by
	// canonical field name ("name", "address", "phone", "website", "status").
	Data map[string]string
}

// matchThreshold is the minimum name similarity for a candidate to count
// as a match rather than a coincidental near-miss.
const matchThreshold = 0.5

// nameSimilarity scores two organization names by token overlap after
// folding case, punctuation, and filler words. Returns 0.0-1.0.
func nameSimilarity(a, b string) float64 {
	ta := nameTokens(a)
	tb := nameTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	set := make(map[string]bool, len(ta))
	for _, tok := range ta {
		set[tok] = true
	}
	union := len(set)
	inter := 0
	for _, tok := range tb {
		if set[tok] {
			inter++
			delete(set, tok) // count each shared token once
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// fillerWords are ignored when tokenizing names. "The Food Bank of Santa
// Clara" and "Food Bank Santa Clara" should compare as equal.
var fillerWords = map[string]bool{
	"the": true, "of": true, "a": true, "an": true, "and": true, "&": true,
	"inc": true, "llc": true, "org": true, "assoc": true, "association": true,
}

func nameTokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !fillerWords[f] {
			out = append(out, f)
		}
	}
	return out
}

// bestCandidate picks the highest-similarity candidate name from a list,
// returning its index and score. Index is -1 when nothing clears the threshold.
func bestCandidate(queryName string, names []string) (int, float64) {
	best, bestScore := -1, 0.0
	for i, n := range names {
		if s := nameSimilarity(queryName, n); s > bestScore {
			best, bestScore = i, s
		}
	}
	if bestScore < matchThreshold {
		return -1, bestScore
	}
	return best, bestScore
}

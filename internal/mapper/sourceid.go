package mapper

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/communityroots/resource-cli/internal/model"
)

// idFields are probed in priority order for a native source identifier.
var idFields = []string{"id", "source_id", "record_id", "external_id", "uid", "guid", "objectid"}

// sourceIDLength is the truncation length for synthesized identifiers.
const sourceIDLength = 16

// DeriveSourceID returns a stable identifier for the record: a native ID when
// the source carries one, otherwise a hash of name+address+city. The hash is
// computed over lowercased, diacritic-folded, alphanumeric-only text so that
// re-imports of the same source record always produce the same ID.
func DeriveSourceID(raw map[string]any, res *model.NormalizedResource) string {
	for _, field := range idFields {
		if val, ok := lookupPath(raw, field); ok {
			if s := asString(val); s != "" {
				return s
			}
		}
	}
	return HashIdentity(res.Name, res.Address, res.City)
}

// HashIdentity synthesizes a deterministic source ID from the record's
// identity fields.
func HashIdentity(name, address, city string) string {
	key := foldAlnum(name) + foldAlnum(address) + foldAlnum(city)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:sourceIDLength]
}

var diacriticFolder = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// foldAlnum lowercases, strips diacritics, and drops everything that is not
// a letter or digit.
func foldAlnum(s string) string {
	folded, _, err := transform.String(diacriticFolder, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

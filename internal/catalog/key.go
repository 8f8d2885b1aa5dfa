// Package catalog persists deduplicated wine records and serves
// paginated, searchable reads over them.
package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// keySeparator joins the normalized triple. Not a character that
// survives normalization, so keys cannot collide across fields.
const keySeparator = "|"

// foldTransformer strips combining marks so "Château" and "Chateau"
// normalize identically.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// DedupKey derives the deterministic catalog key from the normalized
// (name, vintage, producer) triple. Case, whitespace, and diacritic
// variations of the same entry produce the same key.
func DedupKey(name, vintage, producer string) string {
	return normalizeKeyPart(name) + keySeparator +
		normalizeKeyPart(vintage) + keySeparator +
		normalizeKeyPart(producer)
}

func normalizeKeyPart(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err == nil {
		s = folded
	}
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

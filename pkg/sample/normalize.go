package sample

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nullMarkers are values the source uses for "no data".
var nullMarkers = map[string]bool{
	"":     true,
	"-":    true,
	"0":    true,
	"null": true,
}

// NormalizeValue collapses whitespace and reports false for null markers.
func NormalizeValue(v string) (string, bool) {
	v = strings.Join(strings.Fields(v), " ")
	if nullMarkers[strings.ToLower(v)] {
		return "", false
	}
	return v, true
}

// NormalizeAddress folds case, accents and whitespace so that two spellings
// of the same postal address compare equal.
func NormalizeAddress(address string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, address)
	if err != nil {
		folded = address
	}
	v, ok := NormalizeValue(strings.ToLower(folded))
	if !ok {
		return ""
	}
	return v
}

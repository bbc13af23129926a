package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases the input and strips diacritics so that searches match
// regardless of accents ("Calça" folds to "calca").
func Fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(chain, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// ContainsFold reports whether haystack contains needle after folding both.
func ContainsFold(haystack, needle string) bool {
	needle = Fold(needle)
	if needle == "" {
		return true
	}
	return strings.Contains(Fold(haystack), needle)
}

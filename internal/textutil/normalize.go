package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var claimFolder = cases.Fold()

// NormalizeClaim produces the canonical form of a claim sentence. Two claims
// that differ only in casing, punctuation, or whitespace normalize to the
// same string, so the result is suitable as a cache key.
//
// Normalization applies Unicode case folding, replaces punctuation with
// spaces, collapses whitespace runs to a single space, and trims the result.
// Returns "" when the input carries no letters or digits.
func NormalizeClaim(text string) string {
	folded := claimFolder.String(text)
	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Package nlp turns short free-text sentences ("hôm qua ăn sáng 25k") into
// transaction candidates using keyword counting and amount patterns.
package nlp

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s, strips Vietnamese diacritics and collapses
// whitespace. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	lowered := strings.ToLower(s)

	// transform chains keep state, so one per call.
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(foldDStroke),
		norm.NFC,
	)
	out, _, err := transform.String(t, lowered)
	if err != nil {
		out = lowered
	}

	return strings.Join(strings.Fields(out), " ")
}

// đ has no decomposition, it needs an explicit mapping.
func foldDStroke(r rune) rune {
	switch r {
	case 'đ', 'Đ':
		return 'd'
	}
	return r
}

// Package fuzzy matches bank-quoted free text against stored values:
// both sides are reduced to plain upper-case ASCII words before a
// substring test, so diacritics, case and punctuation never break a match.
package fuzzy

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize decomposes the text, drops combining marks and punctuation,
// maps the Latin-extended runes that have no decomposition, collapses
// whitespace runs and upper-cases the result.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(text) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		// Turkish dotless i and the other runes NFD leaves whole
		switch r {
		case 'ı':
			b.WriteRune('i')
		case 'Ø':
			b.WriteRune('O')
		case 'ø':
			b.WriteRune('o')
		case 'Æ':
			b.WriteString("AE")
		case 'æ':
			b.WriteString("ae")
		case 'ẞ':
			b.WriteString("SS")
		case 'ß':
			b.WriteString("ss")
		default:
			if unicode.IsPunct(r) {
				continue
			}
			b.WriteRune(r)
		}
	}

	collapsed := strings.Join(strings.Fields(b.String()), " ")
	return strings.ToUpper(collapsed)
}

// Contains reports whether the normalized source occurs inside the
// normalized target.
func Contains(source, target string) bool {
	return strings.Contains(Normalize(target), Normalize(source))
}

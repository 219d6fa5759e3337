package sanitizer

import (
	"strings"
	"unicode"
)

// collapseSpace trims s and folds every run of whitespace into one space.
func collapseSpace(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
				lastWasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastWasSpace = false
	}
	return b.String()
}

// dropControl removes control and format runes (zero-width joiners, bidi
// overrides) pasted into purposes and admin responses. Whitespace controls
// survive so collapseSpace can fold them.
func dropControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return r
		}
		if unicode.IsControl(r) || unicode.In(r, unicode.Cf) {
			return -1
		}
		return r
	}, s)
}

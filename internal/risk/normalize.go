package risk

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalize folds text into the form keywords are matched against:
// NFKC, case folded, apostrophes dropped, every other non letter/digit run
// collapsed to a single space. Invalid UTF-8 is replaced, never rejected.
func normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, " ")
	s = norm.NFKC.String(s)
	// cases.Caser is stateful; one per call.
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		switch {
		case r == '\'' || r == '’' || r == '‘' || r == '`':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// containsPhrase reports whether phrase occurs in text on word boundaries.
// Both arguments must already be normalised.
func containsPhrase(text, phrase string) bool {
	if phrase == "" || text == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

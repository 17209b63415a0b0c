package chunker

import (
	"strings"
)

func keepRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune(".,%$()-/: ", r)
}

// CleanText collapses runs of whitespace into single spaces and drops every
// character outside letters, digits and the punctuation . , % $ ( ) - / :
func CleanText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	text = strings.Map(func(r rune) rune {
		if keepRune(r) {
			return r
		}
		return -1
	}, text)
	return strings.TrimSpace(text)
}

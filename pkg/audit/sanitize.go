package audit

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxSubmissionChars = 2500

var (
	htmlTag     = regexp.MustCompile(`<[^>]*>`)
	angleQuotes = regexp.MustCompile(`[<>"']`)
)

// SanitizeInput normalizes a raw audit submission: trims, caps length, and
// strips markup characters before the text reaches ranking or prompts.
func SanitizeInput(input string) string {
	text := truncateRunes(strings.TrimSpace(input), maxSubmissionChars)
	text = htmlTag.ReplaceAllString(text, "")
	text = angleQuotes.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// truncateRunes caps text at max bytes without splitting a multibyte rune
// at the cut, so truncated text stays valid UTF-8.
func truncateRunes(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

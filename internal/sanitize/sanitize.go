package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	htmlPolicy  = bluemonday.StrictPolicy()
	mobileRegex = regexp.MustCompile(`^[0-9]{7,15}$`)
	emailRegex  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Text strips all markup from user input and returns plain text, trimmed and
// without null bytes. Callers must still escape the result when rendering HTML.
func Text(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = htmlPolicy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(input))
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ValidMobile checks a phone number after removing common separators.
func ValidMobile(mobile string) bool {
	mobile = strings.NewReplacer("-", "", " ", "", "+", "", "(", "", ")", "").Replace(mobile)
	return mobileRegex.MatchString(mobile)
}

func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

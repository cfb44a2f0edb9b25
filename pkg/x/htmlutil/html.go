package htmlutil

import (
	stdhtml "html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var htmlTagRe = regexp.MustCompile(`(?is)<[^>]*>`)

// CleanText normalizes a possibly-HTML string into a single-line plain text.
// It unescapes HTML entities, strips HTML tags, and collapses whitespace.
// Entities are decoded before collapsing because they may expand to spaces.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	s = stdhtml.UnescapeString(s)
	s = htmlTagRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

const shortenMarker = "[..]"

// Shorten keeps s within maxRunes runes by cutting out its middle and
// putting "[..]" in its place. The head gets the extra rune on odd splits.
func Shorten(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}

	r := []rune(s)
	marker := utf8.RuneCountInString(shortenMarker)
	if maxRunes < marker+2 {
		return string(r[:maxRunes])
	}

	keep := maxRunes - marker
	head := (keep + 1) / 2
	tail := keep - head
	return string(r[:head]) + shortenMarker + string(r[len(r)-tail:])
}

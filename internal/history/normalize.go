package history

import "strings"

// Normalize returns the dedup key for a raw URL: scheme and fragment are
// dropped, the host is lower-cased and a leading "www." is removed. The path
// keeps its case.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "://"); i >= 0 && !strings.ContainsAny(s[:i], "/?#") {
		s = s[i+3:]
	} else if strings.HasPrefix(s, "//") {
		s = s[2:]
	}
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}

	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = strings.ToLower(s[:i]) + s[i:]
	} else {
		s = strings.ToLower(s)
	}

	return strings.TrimPrefix(s, "www.")
}

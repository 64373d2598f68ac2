// Package geocode resolves free-text addresses to coordinates through
// an external geocoding service, fronted by a durable line cache so a
// query is never sent over the network twice. Negative answers are
// cached too; transient failures are not.
package geocode

import (
	"regexp"
	"strings"
)

var (
	escapedWSRe  = regexp.MustCompile(`\\[tnrfv]`)
	multiSpaceRe = regexp.MustCompile(`\s\s+`)
)

// filterDelimiters blanks out the characters the cache line format
// reserves, so any query is safe to write.
func filterDelimiters(s string) string {
	s = strings.ReplaceAll(s, `\n`, " ")
	s = strings.ReplaceAll(s, "|", " ")
	s = strings.ReplaceAll(s, ";", " ")
	return s
}

// NormalizeQuery canonicalizes a query for cache matching: literal
// escape sequences and runs of whitespace collapse to single spaces,
// everything lowercases, and leading/trailing non-alphanumerics drop.
// "  New York, NY " and "new york, ny" normalize identically.
func NormalizeQuery(query string) string {
	q := filterDelimiters(query)
	q = escapedWSRe.ReplaceAllString(q, " ")
	q = multiSpaceRe.ReplaceAllString(q, " ")
	q = strings.ToLower(strings.TrimSpace(q))
	q = strings.TrimFunc(q, func(r rune) bool {
		return !isAlnum(r)
	})
	return q
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r >= 'A' && r <= 'Z'
}

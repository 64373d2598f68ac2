// Package providers holds one canonical-feed parser per external
// source format. Variants differ only in field mapping; the shape of
// their output is always the canonical model in internal/feed.
package providers

import "regexp"

var (
	nsPrefixRe = regexp.MustCompile(`<(/?)([A-Za-z][A-Za-z0-9]*):`)
	entityRe   = regexp.MustCompile(`&[a-z]+;`)
)

// rewriteNamespaces converts colon-delimited namespace prefixes into
// underscore tag names (<g:location> becomes <g_location>). The
// pipeline's structural parsing treats these as plain tags, not XML
// namespaces.
func rewriteNamespaces(raw []byte) []byte {
	return nsPrefixRe.ReplaceAll(raw, []byte(`<$1$2_`))
}

// wrapOpaque wraps the body of every occurrence of the named element in
// CDATA so nested markup round-trips as text instead of being
// mis-parsed as structure.
func wrapOpaque(raw []byte, elem string) []byte {
	open := regexp.MustCompile(`<` + elem + `([^>]*)>`)
	clos := regexp.MustCompile(`</` + elem + `>`)
	raw = open.ReplaceAll(raw, []byte(`<`+elem+`$1><![CDATA[`))
	return clos.ReplaceAll(raw, []byte(`]]></`+elem+`>`))
}

// stripEntities drops named character entities the simplified parsers
// cannot resolve.
func stripEntities(s string) string {
	return entityRe.ReplaceAllString(s, "")
}

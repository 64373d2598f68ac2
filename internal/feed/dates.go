package feed

import (
	"fmt"
	"strings"

	"github.com/araddon/dateparse"
)

// CanonicalDateTime parses a source-format date string and re-emits it
// in the single canonical YYYY-MM-DDTHH:MM:SS form. Timezone defaulting
// is the Normalizer's job, not this function's.
func CanonicalDateTime(s string) (string, error) {
	t, err := dateparse.ParseAny(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("parse datetime %q: %w", s, err)
	}
	return Timestamp(t), nil
}

// CanonicalDate is like CanonicalDateTime but keeps only the date part.
func CanonicalDate(s string) (string, error) {
	t, err := dateparse.ParseAny(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	return t.Format("2006-01-02"), nil
}

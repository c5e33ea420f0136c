package shared

import (
	"strings"

	"golang.org/x/text/cases"
)

// FoldKey returns the comparison key used for case-insensitive names:
// trimmed and Unicode case folded, so "Ação" and "AÇÃO" share a key.
func FoldKey(s string) string {
	// a Caser carries state and must not be shared between goroutines
	return cases.Fold().String(strings.TrimSpace(s))
}

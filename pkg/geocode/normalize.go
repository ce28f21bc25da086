package geocode

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// Normalize canonicalizes a place name for cache keying: Unicode NFC, case
// folding, and whitespace collapse. "Manhattan,  NYC" and "manhattan, nyc"
// share one cache entry.
func Normalize(name string) string {
	s := norm.NFC.String(name)
	s = foldCaser.String(s)
	return strings.Join(strings.Fields(s), " ")
}

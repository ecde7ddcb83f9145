package term

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns the canonical form of a term name: surrounding
// space trimmed and NFC normalised, so that visually identical names
// written with different code point sequences key the same term.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

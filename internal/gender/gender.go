// Package gender infers a single-letter gender code from a Brazilian first
// name. The inference is approximate by design and only feeds ad-platform
// matching; it must never gate eligibility.
package gender

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Known first names. Anything not listed falls through to the ending
// heuristics below.
var nameTable = map[string]string{
	"joao":     "m",
	"jose":     "m",
	"pedro":    "m",
	"paulo":    "m",
	"carlos":   "m",
	"luiz":     "m",
	"luis":     "m",
	"miguel":   "m",
	"gabriel":  "m",
	"lucas":    "m",
	"mateus":   "m",
	"maria":    "f",
	"ana":      "f",
	"mariana":  "f",
	"julia":    "f",
	"juliana":  "f",
	"beatriz":  "f",
	"fernanda": "f",
	"amanda":   "f",
	"camila":   "f",
	"carla":    "f",
	"patricia": "f",
	"gabriela": "f",
}

var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalize(value string) string {
	out, _, err := transform.String(stripDiacritics, value)
	if err != nil {
		out = value
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// Infer returns "m", "f", or "" for a free-text full name. The first token
// decides: table lookup first, then the "son" suffix, then the trailing
// vowel.
func Infer(fullName string) string {
	if fullName == "" {
		return ""
	}
	normalized := normalize(fullName)
	if normalized == "" {
		return ""
	}
	first := strings.Fields(normalized)[0]
	if g, ok := nameTable[first]; ok {
		return g
	}
	if strings.HasSuffix(first, "son") {
		return "m"
	}
	switch first[len(first)-1] {
	case 'a':
		return "f"
	case 'o':
		return "m"
	}
	return ""
}

package keyword

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)

// Normalize lower-cases text and strips diacritics, so that operator
// comparisons are stable across unicode variants of the same word.
func Normalize(text string) string {
	// the transform chain is stateful and can not be shared between calls
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	lowered := strings.ToLower(text)
	out, _, err := transform.String(normFunc, lowered)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		return lowered
	}
	return out
}

// Case- and diacritic-insensitive equality of two strings.
func Equals(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Case- and diacritic-insensitive substring check.
func Contains(haystack, needle string) bool {
	return strings.Contains(Normalize(haystack), Normalize(needle))
}

// Splits free-form text in to normalized tokens, for matching against sets of
// known keywords.
func TokenizeText(text string) []string {
	split := nonTokenChars.ReplaceAllString(text, " ")
	return strings.Fields(Normalize(split))
}

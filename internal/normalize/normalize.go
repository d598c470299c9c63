// Package normalize canonicalises article titles so that titles rendered by
// different sources compare equal.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var leadingTags = regexp.MustCompile(`^(?:\s*\[[^\[\]]*\]\s*)+`)

var quoteReplacer = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"«", `"`, "»", `"`,
)

// Title returns the normalized form of raw: leading format tags such as
// "[PDF]" removed, quotes straightened, diacritics stripped to ASCII,
// lowercased and whitespace collapsed. Title is total and idempotent.
func Title(raw string) string {
	s := stripTags(raw)
	if s == "" {
		return ""
	}
	s = quoteReplacer.Replace(s)
	s = foldASCII(s)
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	// Folding can expose a tag that was hidden behind a non-ASCII prefix.
	return stripTags(s)
}

// Display strips leading format tags and collapses whitespace while keeping
// the original spelling, for titles shown to people.
func Display(raw string) string {
	return stripTags(strings.Join(strings.Fields(raw), " "))
}

// Equal reports whether a and b normalize to the same title.
func Equal(a, b string) bool {
	return Title(a) == Title(b)
}

func stripTags(s string) string {
	return strings.TrimSpace(leadingTags.ReplaceAllString(s, ""))
}

func foldASCII(s string) string {
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

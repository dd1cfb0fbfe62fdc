// Package normalize produces the canonical comparison keys used for
// track identity matching. Two strings that normalize equal are treated
// as the same title or artist by the exact tier of the matcher.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	bracketRegex = regexp.MustCompile(`\s*[\(\[][^()\[\]]*[\)\]]\s*`)
	featRegex    = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?|featuring|with|vs\.?|&)\s+.+`)
	specialRegex = regexp.MustCompile(`[^a-z0-9\s]`)
	spaceRegex   = regexp.MustCompile(`\s+`)

	// NFKD decompose, then drop the combining marks so accented
	// characters collapse to their ASCII base.
	stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
)

// Normalize canonicalizes a free-text title or artist for matching:
// accents stripped, lowercased, bracketed annotations and trailing
// featuring clauses removed, everything outside [a-z0-9 ] dropped,
// whitespace collapsed. Idempotent; empty or all-punctuation input
// yields "".
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	if stripped, _, err := transform.String(stripMarks, text); err == nil {
		text = stripped
	}

	text = strings.ToLower(text)

	// Remove parenthetical content (remixes, versions, etc.). Repeat so
	// nested brackets unwrap from the inside out.
	for {
		next := bracketRegex.ReplaceAllString(text, " ")
		if next == text {
			break
		}
		text = next
	}

	text = featRegex.ReplaceAllString(text, "")
	text = specialRegex.ReplaceAllString(text, "")
	text = spaceRegex.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

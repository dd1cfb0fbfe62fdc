package provider

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// Noise reduction for video titles.
	ytNoiseRegex = regexp.MustCompile(`(?i)\((official video|official audio|official music video|music video|audio|video|lyrics|visualizer|HD|4K|Remaster(ed)?)\)|\[(official video|official audio|official music video|music video|audio|video|lyrics|visualizer|HD|4K|Remaster(ed)?)\]`)
	ytFeatRegex  = regexp.MustCompile(`(?i)\bfeat\.?\b`)
	ytSpaceRegex = regexp.MustCompile(`\s{2,}`)
	ytSplitRegex = regexp.MustCompile(`\s+[-|–—:]\s+|\s+\|\|\s+`)

	titleCaser = cases.Title(language.Und)
)

// SplitVideoTitle extracts (artist, title) from a video title using the
// common "Artist - Title" patterns. When no separator is found the
// uploader stands in as the artist; an empty artist marks the video as
// probably not music.
func SplitVideoTitle(rawTitle, uploader string) (artist, title string) {
	t := ytNoiseRegex.ReplaceAllString(rawTitle, "")
	t = ytFeatRegex.ReplaceAllString(t, "ft.")
	t = ytSpaceRegex.ReplaceAllString(t, " ")
	t = strings.TrimSpace(t)

	parts := ytSplitRegex.Split(t, 2)
	if len(parts) == 2 {
		left, right := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		right = strings.Trim(right, `"'`)
		if looksLikeArtist(left, right) {
			return capWords(left), capWords(right)
		}
		return capWords(right), capWords(left)
	}

	if uploader != "" {
		return capWords(uploader), capWords(t)
	}
	return "", capWords(t)
}

// looksLikeArtist: the left side of a split is the artist when it names
// collaborators (commas, ft.) or is short while the right side is a
// plausible title.
func looksLikeArtist(left, right string) bool {
	leftLower := strings.ToLower(left)
	if strings.Contains(left, ",") || strings.Contains(leftLower, "ft.") || strings.Contains(leftLower, "feat.") {
		return true
	}
	return len(strings.Fields(left)) <= 4 && len(strings.Fields(right)) >= 1
}

// capWords title-cases each word but preserves short all-caps tokens
// like DJ or MIA.
func capWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == strings.ToUpper(w) && len(w) <= 4 {
			continue
		}
		words[i] = titleCaser.String(strings.ToLower(w))
	}
	return strings.Join(words, " ")
}

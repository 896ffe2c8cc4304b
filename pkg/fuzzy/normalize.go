// Package fuzzy normalizes artist names so spelling variants compare equal.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}&\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
	leadingTheRegex = regexp.MustCompile(`^the\s+`)
)

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// ArtistKey returns a comparison key for an artist name: accents folded,
// punctuation dropped, case folded, "and" spelled as "&" and a leading
// "the" removed. Two names with the same key are treated as one artist.
func (n *Normalizer) ArtistKey(artist string) string {
	key := n.basicNormalize(artist)

	key = strings.ReplaceAll(" "+key+" ", " and ", " & ")
	key = strings.TrimSpace(whitespaceRegex.ReplaceAllString(key, " "))
	key = leadingTheRegex.ReplaceAllString(key, "")

	return key
}

func (n *Normalizer) basicNormalize(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	text = strings.ToLower(text)
	text = strings.TrimSpace(text)

	return text
}

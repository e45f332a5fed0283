package shared

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	parentheticalRe = regexp.MustCompile(`[\(\[][^\)\]]*[\)\]]`)
	noiseWordsRe    = regexp.MustCompile(`(?i)\b(official video|music video|lyric video|lyrics|audio|remastered(\s+\d{4})?)\b`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// FoldDiacritics removes combining marks so that "Beyoncé" compares equal to "Beyonce".
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeText lowercases, folds diacritics, and collapses whitespace.
// Used for case/diacritic-insensitive comparison of titles and artists.
func NormalizeText(s string) string {
	s = FoldDiacritics(s)
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanTitle strips parenthetical qualifiers like "(Live)" or "[Remastered 2009]"
// and upload noise words ("official video", "lyrics") while keeping essential punctuation.
func CleanTitle(title string) string {
	title = parentheticalRe.ReplaceAllString(title, "")
	title = noiseWordsRe.ReplaceAllString(title, "")
	title = whitespaceRe.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}

// NormalizeTrackKey builds a comparison key from a track's title and artist.
func NormalizeTrackKey(title, artist string) string {
	return NormalizeText(CleanTitle(title)) + "|" + NormalizeText(artist)
}

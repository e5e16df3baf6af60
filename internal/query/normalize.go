package query

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	quoteReplacer = strings.NewReplacer(
		`"`, "", `'`, "", "`", "",
		"„", "", "”", "", "“", "", "‘", "", "’", "", "«", "", "»", "",
	)
)

// Normalize strips markup and quotes, collapses whitespace and lowercases.
// Accented characters are kept.
func Normalize(text string) string {
	s := tagPattern.ReplaceAllString(text, " ")
	s = quoteReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}

// Fold removes diacritics so "składników" becomes "skladnikow".
func Fold(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	// ł has no decomposition.
	return strings.NewReplacer("ł", "l", "Ł", "L").Replace(out)
}

// stopWords are skipped by Keywords. Polish filler words first.
var stopWords = map[string]bool{
	"ile": true, "jest": true, "są": true, "sa": true, "mamy": true, "ma": true, "mają": true, "maja": true,
	"w": true, "we": true, "z": true, "ze": true, "na": true, "do": true, "od": true, "po": true,
	"i": true, "a": true, "o": true, "u": true, "czy": true, "jak": true, "jakie": true, "jaki": true,
	"które": true, "ktore": true, "który": true, "ktory": true, "co": true, "to": true, "się": true, "sie": true,
	"nie": true, "tak": true, "dla": true, "przez": true, "oraz": true, "lub": true, "albo": true,
	"systemie": true, "system": true, "wszystkie": true, "wszystkich": true, "mi": true, "nam": true,
	"pokaż": true, "pokaz": true, "podaj": true, "proszę": true, "prosze": true,
	"the": true, "is": true, "are": true, "of": true, "in": true, "on": true, "how": true, "many": true,
	"what": true, "have": true, "there": true, "an": true, "and": true, "for": true,
}

// Keywords returns the distinct content words of text in order of first
// appearance, at most limit of them. Words shorter than two runes and stop
// words are skipped; numeric tokens are kept.
func Keywords(text string, limit int) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, limit)

	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = cleanWord(word)
		if utf8.RuneCountInString(word) < 2 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
		if len(out) == limit {
			break
		}
	}
	return out
}

// cleanWord removes punctuation from a word.
func cleanWord(word string) string {
	var cleaned strings.Builder
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '_' {
			cleaned.WriteRune(r)
		}
	}
	return cleaned.String()
}

package reviews

import (
	"strings"
	"unicode"
)

// Words splits text on word boundaries and returns the lower-cased words.
// Apostrophes inside a word are kept ("don't"); punctuation and whitespace
// runs between words are not returned.
func Words(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	words := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f == "" {
			continue
		}
		words = append(words, strings.ToLower(f))
	}
	return words
}

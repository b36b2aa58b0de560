// Package reviews defines the review record read from the source file, its
// content fingerprint, text truncation and word tokenisation.
package reviews

import (
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// Column names in the review file header.
const (
	FieldID                     = "Id"
	FieldProductID              = "ProductId"
	FieldUserID                 = "UserId"
	FieldProfileName            = "ProfileName"
	FieldHelpfulnessNumerator   = "HelpfulnessNumerator"
	FieldHelpfulnessDenominator = "HelpfulnessDenominator"
	FieldScore                  = "Score"
	FieldTime                   = "Time"
	FieldSummary                = "Summary"
	FieldText                   = "Text"
)

// Fields lists every column a source must provide, in file order.
var Fields = []string{
	FieldID, FieldProductID, FieldUserID, FieldProfileName,
	FieldHelpfulnessNumerator, FieldHelpfulnessDenominator,
	FieldScore, FieldTime, FieldSummary, FieldText,
}

// Record is one review row. It is a value type and is never mutated after
// the source produces it.
type Record struct {
	ID                     string
	ProductID              string
	UserID                 string
	ProfileName            string
	HelpfulnessNumerator   string
	HelpfulnessDenominator string
	Score                  string
	Time                   string
	Summary                string
	Text                   string
}

// fieldSeparator keeps ("ab","c") and ("a","bc") from hashing alike.
const fieldSeparator = 0x1f

// ContentHash fingerprints every field except ID, so two rows with the same
// content and different ids collide on purpose.
func (r Record) ContentHash() uint64 {
	d := xxhash.New()
	for _, f := range [...]string{
		r.ProductID, r.UserID, r.ProfileName,
		r.HelpfulnessNumerator, r.HelpfulnessDenominator,
		r.Score, r.Time, r.Summary, r.Text,
	} {
		d.WriteString(f)
		d.Write([]byte{fieldSeparator})
	}
	return d.Sum64()
}

// Truncate returns text cut to at most limit characters. Texts within the
// limit are returned unchanged.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}

// Length returns the number of characters in text.
func Length(text string) int {
	return utf8.RuneCountInString(text)
}

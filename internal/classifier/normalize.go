package classifier

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds a free-text identity field into its matching form:
// compatibility-decomposed, diacritics removed, lowercased, punctuation
// stripped and whitespace collapsed to single spaces.
//
// Periods, apostrophes and quotes are deleted so that "J.R." matches "JR" and
// "O'Neil" matches "ONeil". '&', '-' and '/' are kept because they carry
// meaning in organization and position names. Any other punctuation becomes
// a word break. Normalize is idempotent.
func Normalize(s string) string {
	folded, _, err := transform.String(foldTransformer(), s)
	if err != nil {
		folded = strings.ToLower(s)
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r), unicode.IsControl(r):
			b.WriteRune(' ')
		case isDeletedPunct(r):
			// joined: "j.r." -> "jr"
		case unicode.IsPunct(r) && !isKeptPunct(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// foldTransformer is rebuilt per call; transformers carry state.
// The decompose/strip pair runs twice because lowercasing can reintroduce
// decomposable runes (e.g. U+0130).
func foldTransformer() transform.Transformer {
	return transform.Chain(
		norm.NFKD, runes.Remove(runes.In(unicode.Mn)),
		cases.Lower(language.Und),
		norm.NFKD, runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
}

func isDeletedPunct(r rune) bool {
	switch r {
	case '.', '\'', '"', '`', '‘', '’', '“', '”':
		return true
	}
	return false
}

func isKeptPunct(r rune) bool {
	return r == '&' || r == '-' || r == '/'
}

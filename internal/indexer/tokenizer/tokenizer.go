// Package tokenizer normalises raw document text before shingling.
// It lower-cases input, folds accented letters to their base form, keeps
// only ASCII letters and digits, removes stop-words, and joins the surviving
// words with single spaces.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"i": {}, "me": {}, "my": {}, "myself": {}, "we": {}, "our": {}, "ours": {},
	"ourselves": {}, "you": {}, "your": {}, "yours": {}, "yourself": {},
	"yourselves": {}, "he": {}, "him": {}, "his": {}, "himself": {}, "she": {},
	"her": {}, "hers": {}, "herself": {}, "it": {}, "its": {}, "itself": {},
	"they": {}, "them": {}, "their": {}, "theirs": {}, "themselves": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "am": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "be": {}, "been": {}, "being": {}, "have": {}, "has": {},
	"had": {}, "having": {}, "do": {}, "does": {}, "did": {}, "doing": {},
	"a": {}, "an": {}, "the": {}, "and": {}, "but": {}, "if": {}, "or": {},
	"because": {}, "as": {}, "until": {}, "while": {}, "of": {}, "at": {},
	"by": {}, "for": {}, "with": {}, "about": {}, "against": {}, "between": {},
	"into": {}, "through": {}, "during": {}, "before": {}, "after": {},
	"above": {}, "below": {}, "to": {}, "from": {}, "up": {}, "down": {},
	"in": {}, "out": {}, "on": {}, "off": {}, "over": {}, "under": {},
	"again": {}, "further": {}, "then": {}, "once": {}, "here": {}, "there": {},
	"when": {}, "where": {}, "why": {}, "how": {}, "all": {}, "any": {},
	"both": {}, "each": {}, "few": {}, "more": {}, "most": {}, "other": {},
	"some": {}, "such": {}, "no": {}, "nor": {}, "not": {}, "only": {},
	"own": {}, "same": {}, "so": {}, "than": {}, "too": {}, "very": {},
	"s": {}, "t": {}, "can": {}, "will": {}, "just": {}, "don": {},
	"should": {}, "now": {},
}

// IsStopWord reports whether word is removed by Clean.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// Clean returns the normalised form of text used for shingling. Punctuation
// inside a word is dropped without splitting it ("don't" becomes "dont",
// which survives because only "don" is a stop-word).
func Clean(text string) string {
	return strings.Join(Words(text), " ")
}

// Words returns the cleaned, stop-word-filtered words of text in order.
func Words(text string) []string {
	folded := fold(text)
	fields := strings.FieldsFunc(folded, unicode.IsSpace)
	words := make([]string, 0, len(fields))
	var b strings.Builder
	for _, field := range fields {
		b.Reset()
		for i := 0; i < len(field); i++ {
			c := field[i]
			switch {
			case c >= 'A' && c <= 'Z':
				b.WriteByte(c + ('a' - 'A'))
			case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
				b.WriteByte(c)
			}
		}
		word := b.String()
		if word == "" {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		words = append(words, word)
	}
	return words
}

// fold decomposes text and strips combining marks so that "café" and
// "cafe" clean to the same word.
func fold(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return folded
}

package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldKey is the lookup form of a word: lower case, accents and
// whitespace removed.
func FoldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.M)))
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
}

// ApplyCorrections swaps each word found in the map for its correction,
// keeping an upper-case first letter.
func ApplyCorrections(text string, corrections map[string]string) string {
	if len(corrections) == 0 {
		return text
	}
	words := strings.Fields(text)
	for i, w := range words {
		key := FoldKey(w)
		if key == "" {
			continue
		}
		fixed, ok := corrections[key]
		if !ok || fixed == "" {
			continue
		}
		first, _ := utf8.DecodeRuneInString(w)
		if unicode.ToUpper(first) == first {
			fixed = capitalize(fixed)
		}
		words[i] = fixed
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

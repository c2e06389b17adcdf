package nlp

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Kind selects how a dictated transcript is turned into field text.
type Kind string

const (
	KindPlain Kind = "plain"
	KindEmail Kind = "email"
)

var digitWords = map[string]string{
	"zero":  "0",
	"one":   "1",
	"two":   "2",
	"three": "3",
	"four":  "4",
	"five":  "5",
	"six":   "6",
	"seven": "7",
	"eight": "8",
	"nine":  "9",
}

// spoken connectives, longest phrase first so "at the rate" wins over "at"
var symbolPhrases = []struct {
	words  []string
	symbol string
}{
	{[]string{"at", "the", "rate"}, "@"},
	{[]string{"under", "score"}, "_"},
	{[]string{"at"}, "@"},
	{[]string{"dot"}, "."},
	{[]string{"period"}, "."},
	{[]string{"underscore"}, "_"},
	{[]string{"hyphen"}, "-"},
	{[]string{"dash"}, "-"},
}

var upperCaseDirectives = [][]string{
	{"upper", "case"},
	{"uppercase"},
	{"capital"},
}

// Normalize converts a raw recognition transcript into the text written
// into a form field. It is pure and deterministic.
func Normalize(transcript string, kind Kind) string {
	if kind != KindEmail {
		return strings.TrimSpace(transcript)
	}
	return normalizeEmail(transcript)
}

func normalizeEmail(transcript string) string {
	tokens := strings.Fields(strings.ToLower(foldUnicode(transcript)))

	var b strings.Builder
	for i := 0; i < len(tokens); {
		if n := matchWords(tokens[i:], upperCaseDirectives...); n > 0 {
			i += n
			if i < len(tokens) {
				b.WriteString(upperFirst(mapToken(tokens[i])))
				i++
			}
			continue
		}

		matched := false
		for _, p := range symbolPhrases {
			if n := matchWords(tokens[i:], p.words); n > 0 {
				b.WriteString(p.symbol)
				i += n
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		b.WriteString(mapToken(tokens[i]))
		i++
	}

	return b.String()
}

func mapToken(token string) string {
	if digit, ok := digitWords[token]; ok {
		return digit
	}
	return token
}

// matchWords returns the number of tokens consumed by the first candidate
// that prefixes tokens, or 0.
func matchWords(tokens []string, candidates ...[]string) int {
	for _, words := range candidates {
		if len(words) > len(tokens) {
			continue
		}
		ok := true
		for j, w := range words {
			if tokens[j] != w {
				ok = false
				break
			}
		}
		if ok {
			return len(words)
		}
	}
	return 0
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func foldUnicode(text string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return result
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// Fold lower-cases text, strips diacritics and punctuation and collapses
// whitespace, so "Go to Dashboard." and "go to dashboard" compare equal.
func Fold(text string) string {
	result := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, strings.ToLower(foldUnicode(text)))

	return strings.Join(strings.Fields(result), " ")
}

// ContainsPhrase reports whether phrase occurs in transcript, ignoring case
// and punctuation.
func ContainsPhrase(transcript, phrase string) bool {
	p := Fold(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(Fold(transcript), p)
}

package eliza

import (
	"strings"
	"unicode"
)

// MaxTokens bounds the work a single utterance can cause in the matcher.
const MaxTokens = 64

// Expander maps a contraction to its canonical words. *script.Script
// implements it.
type Expander interface {
	Expand(word string) ([]string, bool)
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

// Tokenize splits the first line of text into lowercase tokens. Whitespace
// and sentence punctuation separate words; contractions known to exp are
// expanded; any other symbol becomes a token of its own. exp may be nil.
func Tokenize(text string, exp Expander) []string {
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = text[:i]
	}
	text = apostrophes.Replace(strings.ToLower(text))

	var (
		tokens []string
		word   strings.Builder
	)
	emit := func(tok string) {
		if exp != nil {
			if words, ok := exp.Expand(tok); ok {
				tokens = append(tokens, words...)
				return
			}
		}
		tokens = append(tokens, tok)
	}
	flush := func() {
		tok := strings.Trim(word.String(), "'")
		word.Reset()
		if tok != "" {
			emit(tok)
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r) || isSeparator(r):
			flush()
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-':
			word.WriteRune(r)
		default:
			flush()
			tokens = append(tokens, string(r))
		}
		if len(tokens) >= MaxTokens {
			break
		}
	}
	flush()

	if len(tokens) > MaxTokens {
		tokens = tokens[:MaxTokens]
	}
	return tokens
}

func isSeparator(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', '"':
		return true
	}
	return false
}

// Package codeanalyzer implements the tokenization rules shared by
// ingest and query parsing: split on whitespace and punctuation that is
// not semantically part of source code, preserve case, never stem and
// never drop stop words. It registers itself with Bleve's analyzer
// registry the same way Bleve's own built-in analyzers do.
package codeanalyzer

import (
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
)

// symbolRunes is the fixed set of code-symbol punctuation that is part
// of a token rather than a delimiter.
const symbolRunes = `_.@#$&+-*/\<>=!?:;,()[]{}|~^"'`

var symbolSet = buildSymbolSet(symbolRunes)

func buildSymbolSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

// isCodeRune reports whether r belongs to the "code symbol" class: a
// letter, a digit, or one of the fixed punctuation runes.
func isCodeRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	_, ok := symbolSet[r]
	return ok
}

// Tokenizer splits a stream of Unicode scalars into maximal runs of
// code runes, discarding whitespace and any other delimiter character.
// It is case-preserving: no filter in this package lower-cases tokens.
type Tokenizer struct{}

// NewTokenizer returns a new code Tokenizer.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

// Tokenize implements analysis.Tokenizer.
func (t *Tokenizer) Tokenize(input []byte) analysis.TokenStream {
	var stream analysis.TokenStream
	position := 1
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		stream = append(stream, &analysis.Token{
			Term:     input[start:end],
			Start:    start,
			End:      end,
			Position: position,
			Type:     analysis.AlphaNumeric,
		})
		position++
		start = -1
	}

	i := 0
	for i < len(input) {
		r, size := utf8.DecodeRune(input[i:])
		if r == utf8.RuneError && size <= 1 {
			// Invalid byte: treat as a delimiter and advance by one.
			flush(i)
			i++
			continue
		}
		if isCodeRune(r) {
			if start < 0 {
				start = i
			}
		} else {
			flush(i)
		}
		i += size
	}
	flush(len(input))

	return stream
}

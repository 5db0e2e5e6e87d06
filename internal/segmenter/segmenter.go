// Package segmenter extracts candidate hint words from source content
// for the hint (autocomplete) index.
package segmenter

import (
	"unicode/utf8"

	"github.com/sourcewatch/codeindex/internal/codeanalyzer"
)

const (
	// MinWordLength and MaxWordLength bound the hint-word length filter:
	// a token is emitted only if its length strictly satisfies
	// MinWordLength < len < MaxWordLength.
	MinWordLength = 3
	MaxWordLength = 200
)

// Segment re-uses the CodeAnalyzer's tokenizer to split content, then
// emits only tokens whose length (in runes, so multi-byte identifiers
// aren't over-counted) strictly satisfies 3 < len < 200. It is
// case-preserving; deduplication is the caller's responsibility.
func Segment(content string) []string {
	stream := codeanalyzer.Tokenize(content)
	words := make([]string, 0, len(stream))
	for _, tok := range stream {
		n := utf8.RuneCount(tok.Term)
		if n > MinWordLength && n < MaxWordLength {
			words = append(words, string(tok.Term))
		}
	}
	return words
}

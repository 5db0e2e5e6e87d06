package codeanalyzer

import (
	"fmt"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// TokenizerName is the registry name of the code Tokenizer.
	TokenizerName = "code"

	// Name is the registry name of the case-preserving code analyzer.
	Name = "code"

	// LowerName is the registry name of the case-insensitive code
	// analyzer (code tokenizer plus a lower-case token filter).
	LowerName = "code_lower"
)

// TokenizerConstructor builds the code Tokenizer for the registry.
func TokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return NewTokenizer(), nil
}

// AnalyzerConstructor builds the case-preserving code analyzer: the code
// tokenizer with no token filters, so tokens are emitted exactly as
// they appear in the source.
func AnalyzerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Analyzer, error) {
	tokenizer, err := cache.TokenizerNamed(TokenizerName)
	if err != nil {
		return nil, fmt.Errorf("error building code analyzer: %w", err)
	}
	return &analysis.DefaultAnalyzer{
		Tokenizer: tokenizer,
	}, nil
}

// LowerAnalyzerConstructor builds the case-insensitive code analyzer used
// for WordLower and any other lower-cased view: the same tokenizer, plus
// Bleve's standard lower-case token filter.
func LowerAnalyzerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Analyzer, error) {
	tokenizer, err := cache.TokenizerNamed(TokenizerName)
	if err != nil {
		return nil, fmt.Errorf("error building code_lower analyzer: %w", err)
	}
	toLowerFilter, err := cache.TokenFilterNamed(lowercase.Name)
	if err != nil {
		return nil, fmt.Errorf("error building code_lower analyzer: %w", err)
	}
	return &analysis.DefaultAnalyzer{
		Tokenizer:    tokenizer,
		TokenFilters: []analysis.TokenFilter{toLowerFilter},
	}, nil
}

func init() {
	registry.RegisterTokenizer(TokenizerName, TokenizerConstructor)
	registry.RegisterAnalyzer(Name, AnalyzerConstructor)
	registry.RegisterAnalyzer(LowerName, LowerAnalyzerConstructor)
}

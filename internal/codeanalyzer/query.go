package codeanalyzer

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/search/query"
)

// NewQueryParser returns a fresh query over the given field using the
// code analyzer. A fresh instance is produced on every call; parsers are
// not shared across threads.
//
// Terms separated by whitespace are combined with an implicit AND: a
// document matches only if it contains every term of the query.
func NewQueryParser(field, queryString string) query.Query {
	q := bleve.NewMatchQuery(queryString)
	q.SetField(field)
	q.Analyzer = Name
	q.Operator = query.MatchQueryOperatorAnd
	return q
}

// Tokenize runs the code analyzer's tokenizer directly over text,
// returning tokens with original case preserved. Used by WordSegmenter
// and anywhere ingest needs the raw token stream rather than a
// constructed query.
func Tokenize(text string) analysis.TokenStream {
	return NewTokenizer().Tokenize([]byte(text))
}

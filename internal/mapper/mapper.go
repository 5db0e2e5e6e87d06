// Package mapper maps between domain.CodeSource/domain.CodeWord and the
// Bleve document shapes the index pools store, and builds the Bleve
// index mappings for both indexes.
package mapper

import (
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"

	"github.com/sourcewatch/codeindex/internal/codeanalyzer"
	"github.com/sourcewatch/codeindex/internal/domain"
)

// codeDoc is the Bleve document shape for a domain.CodeSource. FileName,
// FileExtension, FilePath, and Info are duplicated under their
// "$$_"-suffixed untokenized names by the field mappings below (CodePK
// and the tick fields get a single untokenized field), not by duplicating the
// struct field itself — a single Go field can back two field mappings
// at the same path as long as their Name override differs.
type codeDoc struct {
	CodePK           string `json:"CodePK"`
	FileName         string `json:"FileName"`
	FileExtension    string `json:"FileExtension"`
	FilePath         string `json:"FilePath"`
	Content          string `json:"Content"`
	IndexDate        string `json:"IndexDate"`
	LastWriteTimeUtc string `json:"LastWriteTimeUtc"`
	Info             string `json:"Info"`
}

// hintDoc is the Bleve document shape for a domain.CodeWord.
type hintDoc struct {
	Word      string `json:"Word"`
	WordLower string `json:"WordLower"`
}

// NewCodeIndexMapping builds the Bleve index mapping for CodeSource
// documents: Content is tokenized-and-stored only; CodePK is
// untokenized only; every other string field gets both a tokenized
// field and an untokenized "$$_" companion.
func NewCodeIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = codeanalyzer.Name
	contentField.Store = true
	contentField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.CodeFieldContent, contentField)

	pkField := bleve.NewTextFieldMapping()
	pkField.Analyzer = keyword.Name
	pkField.Store = true
	docMapping.AddFieldMappingsAt(domain.CodeFieldCodePK, pkField)

	addDualField(docMapping, domain.CodeFieldFileName)
	addDualField(docMapping, domain.CodeFieldFileExtension)
	addDualField(docMapping, domain.CodeFieldFilePath)
	addDualField(docMapping, domain.CodeFieldInfo)

	// Tick fields: stored untokenized, parsed back with strconv.
	indexDateField := bleve.NewTextFieldMapping()
	indexDateField.Analyzer = keyword.Name
	indexDateField.Store = true
	docMapping.AddFieldMappingsAt(domain.CodeFieldIndexDate, indexDateField)

	lastWriteField := bleve.NewTextFieldMapping()
	lastWriteField.Analyzer = keyword.Name
	lastWriteField.Store = true
	docMapping.AddFieldMappingsAt(domain.CodeFieldLastWriteTimeUtc, lastWriteField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = codeanalyzer.Name
	return indexMapping
}

// NewHintIndexMapping builds the Bleve index mapping for CodeWord
// documents: Word and WordLower each get a tokenized field plus an
// untokenized "$$_" companion for exact/prefix lookups.
func NewHintIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	addDualField(docMapping, domain.HintFieldWord)

	wordLowerField := bleve.NewTextFieldMapping()
	wordLowerField.Analyzer = codeanalyzer.LowerName
	wordLowerField.Store = true
	docMapping.AddFieldMappingsAt(domain.HintFieldWordLower, wordLowerField)

	wordLowerUntokenized := bleve.NewTextFieldMapping()
	wordLowerUntokenized.Analyzer = keyword.Name
	wordLowerUntokenized.Store = true
	wordLowerUntokenized.Name = domain.UntokenizedField(domain.HintFieldWordLower)
	docMapping.AddFieldMappingsAt(domain.HintFieldWordLower, wordLowerUntokenized)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = codeanalyzer.Name
	return indexMapping
}

// addDualField registers a tokenized field mapping at fieldName using
// the code analyzer, plus an untokenized companion named with the
// "$$_" suffix using Bleve's keyword (no-op) analyzer.
func addDualField(docMapping *mapping.DocumentMapping, fieldName string) {
	tokenized := bleve.NewTextFieldMapping()
	tokenized.Analyzer = codeanalyzer.Name
	tokenized.Store = true
	docMapping.AddFieldMappingsAt(fieldName, tokenized)

	untokenized := bleve.NewTextFieldMapping()
	untokenized.Analyzer = keyword.Name
	untokenized.Store = true
	untokenized.Name = domain.UntokenizedField(fieldName)
	docMapping.AddFieldMappingsAt(fieldName, untokenized)
}

// ToDocument maps a CodeSource to its Bleve document id and body.
// CodePK is generated here if absent on input.
func ToDocument(src domain.CodeSource) (id string, body any) {
	if src.CodePK == "" {
		src.CodePK = uuid.NewString()
	}
	doc := codeDoc{
		CodePK:           src.CodePK,
		FileName:         src.FileName,
		FileExtension:    src.FileExtension,
		FilePath:         src.FilePath,
		Content:          src.Content,
		IndexDate:        strconv.FormatInt(src.IndexDate.UnixNano(), 10),
		LastWriteTimeUtc: strconv.FormatInt(src.LastWriteTimeUtc.UnixNano(), 10),
		Info:             src.Info,
	}
	return src.CodePK, doc
}

// FromFields reconstructs a CodeSource from a Bleve search hit's
// returned field map (as populated by a SearchRequest listing these
// field names). Tick fields are parsed back via plain integer parsing.
func FromFields(fields map[string]any) domain.CodeSource {
	src := domain.CodeSource{
		CodePK:        stringField(fields, domain.CodeFieldCodePK),
		FileName:      stringField(fields, domain.CodeFieldFileName),
		FileExtension: stringField(fields, domain.CodeFieldFileExtension),
		FilePath:      stringField(fields, domain.CodeFieldFilePath),
		Content:       stringField(fields, domain.CodeFieldContent),
		Info:          stringField(fields, domain.CodeFieldInfo),
	}
	if ticks, err := strconv.ParseInt(stringField(fields, domain.CodeFieldIndexDate), 10, 64); err == nil {
		src.IndexDate = time.Unix(0, ticks).UTC()
	}
	if ticks, err := strconv.ParseInt(stringField(fields, domain.CodeFieldLastWriteTimeUtc), 10, 64); err == nil {
		src.LastWriteTimeUtc = time.Unix(0, ticks).UTC()
	}
	return src
}

func stringField(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// ToHintDocument maps a CodeWord to its Bleve document id (the word
// itself, since Word is the uniqueness key) and body.
func ToHintDocument(word domain.CodeWord) (id string, body any) {
	return word.Word, hintDoc{
		Word:      word.Word,
		WordLower: word.WordLower,
	}
}

// NewCodeWord builds a CodeWord from a raw token, deriving WordLower.
func NewCodeWord(word string) domain.CodeWord {
	return domain.CodeWord{Word: word, WordLower: strings.ToLower(word)}
}

// Package mcp registers the code index's MCP tool surface: search_code
// for full-text search over indexed content, and autocomplete for
// typeahead lookups against the hint index.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sourcewatch/codeindex/internal/codeanalyzer"
	"github.com/sourcewatch/codeindex/internal/domain"
	"github.com/sourcewatch/codeindex/internal/indexpool"
)

// ServerConfig contains everything needed to register the code index's
// tools on an MCP server.
type ServerConfig struct {
	Name    string
	Version string

	// CodePool and HintPool back search_code and autocomplete
	// respectively. Either may be nil, in which case its tool is not
	// registered.
	CodePool *indexpool.Pool
	HintPool *indexpool.Pool

	// MaxSearchHits bounds both tools' result size.
	MaxSearchHits int
}

// CreateServer creates the MCP server and registers whichever tools its
// configured pools support.
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	maxHits := cfg.MaxSearchHits
	if maxHits <= 0 {
		maxHits = 50
	}

	if cfg.CodePool != nil {
		RegisterSearchTool(s, cfg.CodePool, maxHits)
	}
	if cfg.HintPool != nil {
		RegisterAutocompleteTool(s, cfg.HintPool, maxHits)
	}

	return s
}

// SearchArgument is the search_code tool's input.
type SearchArgument struct {
	Query      string `json:"query" jsonschema_description:"Search query over indexed file content"`
	Extension  string `json:"extension,omitempty" jsonschema_description:"Filter by file extension, without the leading dot (e.g. go, py)"`
	PathPrefix string `json:"path_prefix,omitempty" jsonschema_description:"Filter to files whose absolute path starts with this prefix"`
}

// SearchHandler implements the search_code tool over one code IndexPool.
type SearchHandler struct {
	pool    *indexpool.Pool
	maxHits int
}

// NewSearchHandler builds a SearchHandler.
func NewSearchHandler(pool *indexpool.Pool, maxHits int) *SearchHandler {
	return &SearchHandler{pool: pool, maxHits: maxHits}
}

// Handle executes the search and formats the matching files as Markdown.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("query cannot be empty"), nil, nil
	}

	searchReq := bleve.NewSearchRequest(h.buildQuery(args))
	searchReq.Size = h.maxHits
	searchReq.Fields = []string{domain.CodeFieldFilePath, domain.CodeFieldFileExtension, domain.CodeFieldContent}
	searchReq.Highlight = bleve.NewHighlight()
	searchReq.Highlight.AddField(domain.CodeFieldContent)

	result, err := h.pool.SearchRequest(searchReq)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %s", err)), nil, nil
	}

	return formatSearchResults(result, args.Query), nil, nil
}

func (h *SearchHandler) buildQuery(args SearchArgument) query.Query {
	content := codeanalyzer.NewQueryParser(domain.CodeFieldContent, args.Query)

	if args.Extension == "" && args.PathPrefix == "" {
		return content
	}

	must := []query.Query{content}
	if args.Extension != "" {
		ext := bleve.NewTermQuery(strings.TrimPrefix(args.Extension, "."))
		ext.SetField(domain.UntokenizedField(domain.CodeFieldFileExtension))
		must = append(must, ext)
	}
	if args.PathPrefix != "" {
		prefix := bleve.NewPrefixQuery(args.PathPrefix)
		prefix.SetField(domain.UntokenizedField(domain.CodeFieldFilePath))
		must = append(must, prefix)
	}
	return bleve.NewConjunctionQuery(must...)
}

func formatSearchResults(result *bleve.SearchResult, queryStr string) *mcp.CallToolResult {
	if result.Total == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("No results for query: %s", queryStr)}},
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for %q:\n\n", result.Total, queryStr)
	for i, hit := range result.Hits {
		path, _ := hit.Fields[domain.CodeFieldFilePath].(string)
		fmt.Fprintf(&sb, "### %d. %s (score %.4f)\n", i+1, path, hit.Score)
		if fragments, ok := hit.Fragments[domain.CodeFieldContent]; ok {
			sb.WriteString("```\n")
			for _, fragment := range fragments {
				sb.WriteString(fragment)
				sb.WriteString("\n")
			}
			sb.WriteString("```\n")
		}
		sb.WriteString("\n")
	}
	if result.Total > uint64(len(result.Hits)) {
		fmt.Fprintf(&sb, "... and %d more results\n", result.Total-uint64(len(result.Hits)))
	}

	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: sb.String()}}}
}

// RegisterSearchTool registers search_code on server.
func RegisterSearchTool(server *mcp.Server, pool *indexpool.Pool, maxHits int) {
	handler := NewSearchHandler(pool, maxHits)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_code",
		Description: "Search indexed source files by content, optionally filtered by extension or path prefix",
	}, handler.Handle)
}

// AutocompleteArgument is the autocomplete tool's input.
type AutocompleteArgument struct {
	Prefix string `json:"prefix" jsonschema_description:"Case-insensitive prefix to complete against the hint word index"`
	Limit  int    `json:"limit,omitempty" jsonschema_description:"Maximum number of suggestions to return"`
}

// AutocompleteHandler implements the autocomplete tool over one hint
// IndexPool.
type AutocompleteHandler struct {
	pool       *indexpool.Pool
	defaultMax int
}

// NewAutocompleteHandler builds an AutocompleteHandler.
func NewAutocompleteHandler(pool *indexpool.Pool, defaultMax int) *AutocompleteHandler {
	return &AutocompleteHandler{pool: pool, defaultMax: defaultMax}
}

// Handle returns hint words whose lower-cased form starts with the
// lower-cased prefix, via a prefix query against the untokenized
// WordLower$$_ field.
func (h *AutocompleteHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args AutocompleteArgument) (*mcp.CallToolResult, any, error) {
	prefix := strings.TrimSpace(args.Prefix)
	if prefix == "" {
		return errorResult("prefix cannot be empty"), nil, nil
	}

	limit := args.Limit
	if limit <= 0 || limit > h.defaultMax {
		limit = h.defaultMax
	}

	q := bleve.NewPrefixQuery(strings.ToLower(prefix))
	q.SetField(domain.UntokenizedField(domain.HintFieldWordLower))

	searchReq := bleve.NewSearchRequest(q)
	searchReq.Size = limit
	searchReq.Fields = []string{domain.HintFieldWord}

	result, err := h.pool.SearchRequest(searchReq)
	if err != nil {
		return errorResult(fmt.Sprintf("autocomplete failed: %s", err)), nil, nil
	}

	if result.Total == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("No completions for prefix: %s", prefix)}},
		}, nil, nil
	}

	words := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if w, ok := hit.Fields[domain.HintFieldWord].(string); ok {
			words = append(words, w)
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: strings.Join(words, "\n")}},
	}, nil, nil
}

// RegisterAutocompleteTool registers autocomplete on server.
func RegisterAutocompleteTool(server *mcp.Server, pool *indexpool.Pool, maxHits int) {
	handler := NewAutocompleteHandler(pool, maxHits)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "autocomplete",
		Description: "Suggest hint words from the code index that start with a given prefix",
	}, handler.Handle)
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

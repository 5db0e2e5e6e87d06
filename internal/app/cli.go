package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type (only stdio is supported)")
	flags.StringSliceP("root", "r", nil, "Watched root directory (repeatable)")
	flags.String("base-dir", "", "Base directory for code.bleve, hint.bleve, manifest.json, and build.lock")
	flags.StringSlice("exclude", nil, "Additional exclude glob pattern (repeatable)")
	flags.StringSlice("include", nil, "Include allow-list glob pattern (repeatable); when set, only matching files are eligible")
	flags.Int64("max-file-size", 0, "Maximum file size in bytes eligible for indexing")
	flags.Int("batch-size", 0, "Number of documents staged before a batch flush")
	flags.Duration("watch-debounce", 0, "Debounce window for coalescing filesystem events per path")
	flags.Duration("build-timeout", 0, "Timeout for the initial full-index build")
	flags.Int("max-search-hits", 0, "Maximum hits returned by search_code and autocomplete")
}

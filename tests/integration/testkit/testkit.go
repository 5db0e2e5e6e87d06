package testkit

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sourcewatch/codeindex/internal/app"
	"github.com/sourcewatch/codeindex/internal/config"
	"github.com/spf13/pflag"
)

// Corpus maps relative file paths to file contents. It is the input to
// WriteCorpus, which materializes it under a watched root.
type Corpus map[string]string

// DefaultCorpus returns a small mixed-language source tree with
// distinctive identifiers that integration tests can search for.
func DefaultCorpus() Corpus {
	return Corpus{
		"main.go":            "package main\n\nfunc main() {\n\tStartIndexerDaemon()\n}\n",
		"daemon.go":          "package main\n\n// StartIndexerDaemon boots the background indexer.\nfunc StartIndexerDaemon() {}\n",
		"pkg/parse/parse.py": "def parse_config(path):\n    return ConfigReader(path).load()\n",
		"docs/notes.txt":     "remember to rotate the signing credentials quarterly\n",
	}
}

// WriteCorpus writes every file in corpus under root, creating parent
// directories as needed.
func WriteCorpus(t testing.TB, root string, corpus Corpus) {
	t.Helper()
	for rel, content := range corpus {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", rel, err)
		}
	}
}

// SettingsOptions configures NewSettings
type SettingsOptions struct {
	Roots         []string      // Defaults to one fresh temp dir
	BaseDir       string        // Defaults to a fresh temp dir
	BatchSize     int           // Defaults to 100
	WatchDebounce time.Duration // Defaults to 50ms
}

// NewSettings builds a fully valid Settings over temp directories,
// suitable for app.CreateMCPServer.
func NewSettings(t testing.TB, opts *SettingsOptions) *config.Settings {
	t.Helper()

	roots := []string{t.TempDir()}
	baseDir := t.TempDir()
	batchSize := 100
	debounce := 50 * time.Millisecond

	if opts != nil {
		if len(opts.Roots) > 0 {
			roots = opts.Roots
		}
		if opts.BaseDir != "" {
			baseDir = opts.BaseDir
		}
		if opts.BatchSize != 0 {
			batchSize = opts.BatchSize
		}
		if opts.WatchDebounce != 0 {
			debounce = opts.WatchDebounce
		}
	}

	settings := &config.Settings{
		Transport: "stdio",
		Index: config.IndexSettings{
			Roots:         roots,
			BaseDir:       baseDir,
			MaxFileSize:   1024 * 1024,
			BatchSize:     batchSize,
			WatchDebounce: debounce,
			BuildTimeout:  60 * time.Second,
			MaxSearchHits: 20,
		},
	}

	if err := config.ValidateSettings(settings); err != nil {
		t.Fatalf("Test settings are invalid: %v", err)
	}
	return settings
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Roots     []string
	BaseDir   string
	Transport string // Defaults to "stdio"
	BatchSize int
}

// NewTestFlags creates a configured pflag.FlagSet for testing
func NewTestFlags(t testing.TB, opts *FlagOptions) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)

	transport := "stdio"
	var roots []string
	var baseDir string
	batchSize := 0

	if opts != nil {
		if opts.Transport != "" {
			transport = opts.Transport
		}
		roots = opts.Roots
		baseDir = opts.BaseDir
		batchSize = opts.BatchSize
	}

	_ = flags.Set("transport", transport)
	for _, root := range roots {
		_ = flags.Set("root", root)
	}
	if baseDir != "" {
		_ = flags.Set("base-dir", baseDir)
	}
	if batchSize != 0 {
		_ = flags.Set("batch-size", fmt.Sprintf("%d", batchSize))
	}

	return flags
}

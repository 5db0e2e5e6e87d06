// Package config loads application settings from CLI flags, environment
// variables, and an optional .env file, and logs the resolved values.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings is the fully resolved application configuration.
type Settings struct {
	// Transport is "stdio" (the only supported transport; the HTTP/UI
	// layer and its SSE transport are out of scope here).
	Transport string `mapstructure:"transport"`

	Index IndexSettings `mapstructure:"index"`
}

// IndexSettings configures the watched roots and the indexing core.
type IndexSettings struct {
	// Roots are the directories watched and indexed.
	Roots []string `mapstructure:"roots"`

	// BaseDir holds the on-disk code.bleve, hint.bleve, manifest.json,
	// and build.lock, shared by all watched roots.
	BaseDir string `mapstructure:"base_dir"`

	// ExcludePatterns supplements DefaultExcludePatterns; IncludePatterns,
	// when non-empty, is the only set of patterns a file may match to be
	// eligible.
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
	IncludePatterns []string `mapstructure:"include_patterns"`

	MaxFileSize int64 `mapstructure:"max_file_size"`
	BatchSize   int   `mapstructure:"batch_size"`

	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
	BuildTimeout  time.Duration `mapstructure:"build_timeout"`

	MaxSearchHits int `mapstructure:"max_search_hits"`
}

// LoadSettings loads settings from environment variables, defaults, and
// an optional .env file, with no CLI flag overrides.
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("transport", "stdio")
	v.SetDefault("index.base_dir", defaultBaseDir())
	v.SetDefault("index.max_file_size", int64(1024*1024)) // 1MiB
	v.SetDefault("index.batch_size", 10000)
	v.SetDefault("index.watch_debounce", 500*time.Millisecond)
	v.SetDefault("index.build_timeout", 60*time.Second)
	v.SetDefault("index.max_search_hits", 50)

	v.SetEnvPrefix("CODEINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("index.roots", "CODEINDEX_INDEX_ROOTS")
	_ = v.BindEnv("index.base_dir", "CODEINDEX_INDEX_BASE_DIR")
	_ = v.BindEnv("index.exclude_patterns", "CODEINDEX_INDEX_EXCLUDE_PATTERNS")
	_ = v.BindEnv("index.include_patterns", "CODEINDEX_INDEX_INCLUDE_PATTERNS")
	_ = v.BindEnv("index.max_file_size", "CODEINDEX_INDEX_MAX_FILE_SIZE")
	_ = v.BindEnv("index.batch_size", "CODEINDEX_INDEX_BATCH_SIZE")
	_ = v.BindEnv("index.watch_debounce", "CODEINDEX_INDEX_WATCH_DEBOUNCE")
	_ = v.BindEnv("index.build_timeout", "CODEINDEX_INDEX_BUILD_TIMEOUT")
	_ = v.BindEnv("index.max_search_hits", "CODEINDEX_INDEX_MAX_SEARCH_HITS")

	if flags != nil {
		_ = v.BindPFlag("transport", flags.Lookup("transport"))
		_ = v.BindPFlag("index.roots", flags.Lookup("root"))
		_ = v.BindPFlag("index.base_dir", flags.Lookup("base-dir"))
		_ = v.BindPFlag("index.exclude_patterns", flags.Lookup("exclude"))
		_ = v.BindPFlag("index.include_patterns", flags.Lookup("include"))
		_ = v.BindPFlag("index.max_file_size", flags.Lookup("max-file-size"))
		_ = v.BindPFlag("index.batch_size", flags.Lookup("batch-size"))
		_ = v.BindPFlag("index.watch_debounce", flags.Lookup("watch-debounce"))
		_ = v.BindPFlag("index.build_timeout", flags.Lookup("build-timeout"))
		_ = v.BindPFlag("index.max_search_hits", flags.Lookup("max-search-hits"))
	}

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	rootsEnv := os.Getenv("CODEINDEX_INDEX_ROOTS")
	if rootsEnv != "" && (len(settings.Index.Roots) == 0 || (len(settings.Index.Roots) == 1 && strings.Contains(settings.Index.Roots[0], ","))) {
		settings.Index.Roots = strings.Split(rootsEnv, ",")
	}
	for i := range settings.Index.Roots {
		settings.Index.Roots[i] = strings.TrimSpace(expandHomeDir(settings.Index.Roots[i]))
	}
	settings.Index.Roots = filterEmptyStrings(settings.Index.Roots)
	settings.Index.BaseDir = expandHomeDir(settings.Index.BaseDir)

	return &settings, nil
}

// ValidateSettings checks for incomplete or contradictory configuration.
func ValidateSettings(s *Settings) error {
	if s.Transport != "stdio" {
		return errors.New("transport must be 'stdio', got: " + s.Transport)
	}
	if len(s.Index.Roots) == 0 {
		return errors.New("at least one --root must be configured")
	}
	if s.Index.BaseDir == "" {
		return errors.New("index.base_dir cannot be empty")
	}
	if s.Index.MaxFileSize <= 0 {
		return errors.New("index.max_file_size must be positive")
	}
	if s.Index.BatchSize <= 0 {
		return errors.New("index.batch_size must be positive")
	}
	if s.Index.WatchDebounce <= 0 {
		return errors.New("index.watch_debounce must be positive")
	}
	if s.Index.MaxSearchHits <= 0 {
		return errors.New("index.max_search_hits must be positive")
	}
	return nil
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codeindex"
	}
	return filepath.Join(home, ".codeindex")
}

func expandHomeDir(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

func filterEmptyStrings(s []string) []string {
	var result []string
	for _, str := range s {
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}

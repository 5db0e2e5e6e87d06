package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadSettings_Defaults(t *testing.T) {
	_ = os.Unsetenv("CODEINDEX_INDEX_ROOTS")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Transport != "stdio" {
		t.Errorf("Expected default transport 'stdio', got '%s'", settings.Transport)
	}
	if settings.Index.BatchSize != 10000 {
		t.Errorf("Expected default batch size 10000, got %d", settings.Index.BatchSize)
	}
	if settings.Index.WatchDebounce != 500*time.Millisecond {
		t.Errorf("Expected default watch debounce 500ms, got %v", settings.Index.WatchDebounce)
	}
	if settings.Index.MaxSearchHits != 50 {
		t.Errorf("Expected default max search hits 50, got %d", settings.Index.MaxSearchHits)
	}
	if !strings.HasSuffix(settings.Index.BaseDir, ".codeindex") {
		t.Errorf("Expected base dir to end with '.codeindex', got '%s'", settings.Index.BaseDir)
	}
}

func TestLoadSettings_RootsEnvVar(t *testing.T) {
	t.Setenv("CODEINDEX_INDEX_ROOTS", "/a/b,/c/d")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if len(settings.Index.Roots) != 2 {
		t.Fatalf("Expected 2 roots, got %d", len(settings.Index.Roots))
	}
	if settings.Index.Roots[0] != "/a/b" || settings.Index.Roots[1] != "/c/d" {
		t.Errorf("Expected roots [/a/b /c/d], got %v", settings.Index.Roots)
	}
}

func TestLoadSettings_RootsTrimSpaces(t *testing.T) {
	t.Setenv("CODEINDEX_INDEX_ROOTS", " /a/b , /c/d ")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Index.Roots[0] != "/a/b" || settings.Index.Roots[1] != "/c/d" {
		t.Errorf("Expected trimmed roots, got %v", settings.Index.Roots)
	}
}

func TestLoadSettings_BaseDirEnvVar(t *testing.T) {
	t.Setenv("CODEINDEX_INDEX_BASE_DIR", "/custom/path")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Index.BaseDir != "/custom/path" {
		t.Errorf("Expected base dir '/custom/path', got '%s'", settings.Index.BaseDir)
	}
}

func TestLoadSettings_BaseDirExpandHome(t *testing.T) {
	t.Setenv("CODEINDEX_INDEX_BASE_DIR", "~/custom-codeindex")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, "custom-codeindex")
	if settings.Index.BaseDir != expected {
		t.Errorf("Expected base dir '%s', got '%s'", expected, settings.Index.BaseDir)
	}
}

func TestLoadSettings_MaxFileSizeEnvVar(t *testing.T) {
	t.Setenv("CODEINDEX_INDEX_MAX_FILE_SIZE", "512000")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Index.MaxFileSize != 512000 {
		t.Errorf("Expected max file size 512000, got %d", settings.Index.MaxFileSize)
	}
}

func TestLoadSettings_InvalidConfig(t *testing.T) {
	t.Setenv("CODEINDEX_INDEX_MAX_FILE_SIZE", "not-a-number")

	_, err := LoadSettings()
	if err == nil {
		t.Fatal("Expected error for invalid max file size type")
	}
}

func TestLoadSettingsWithFlags_CLIOverridesEnv(t *testing.T) {
	t.Setenv("CODEINDEX_INDEX_BATCH_SIZE", "500")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("batch-size", 0, "")
	_ = flags.Set("batch-size", "777")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Index.BatchSize != 777 {
		t.Errorf("Expected CLI batch size 777, got %d", settings.Index.BatchSize)
	}
}

func TestLoadSettingsWithFlags_NilFlags(t *testing.T) {
	settings, err := LoadSettingsWithFlags(nil)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if settings.Index.BatchSize != 10000 {
		t.Errorf("Expected default batch size 10000, got %d", settings.Index.BatchSize)
	}
}

func TestLoadSettingsWithFlags_AllFlagTypes(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("transport", "", "")
	flags.StringSlice("root", nil, "")
	flags.String("base-dir", "", "")
	flags.Int64("max-file-size", 0, "")
	flags.Int("batch-size", 0, "")
	flags.Duration("watch-debounce", 0, "")
	flags.Int("max-search-hits", 0, "")

	_ = flags.Set("transport", "stdio")
	_ = flags.Set("root", "/w1,/w2")
	_ = flags.Set("base-dir", "/flag/base")
	_ = flags.Set("max-file-size", "2048")
	_ = flags.Set("batch-size", "100")
	_ = flags.Set("watch-debounce", "2s")
	_ = flags.Set("max-search-hits", "30")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if len(settings.Index.Roots) != 2 {
		t.Fatalf("Expected 2 roots from flag, got %v", settings.Index.Roots)
	}
	if settings.Index.BaseDir != "/flag/base" {
		t.Errorf("Expected base dir '/flag/base', got '%s'", settings.Index.BaseDir)
	}
	if settings.Index.MaxFileSize != 2048 {
		t.Errorf("Expected max file size 2048, got %d", settings.Index.MaxFileSize)
	}
	if settings.Index.BatchSize != 100 {
		t.Errorf("Expected batch size 100, got %d", settings.Index.BatchSize)
	}
	if settings.Index.WatchDebounce != 2*time.Second {
		t.Errorf("Expected watch debounce 2s, got %v", settings.Index.WatchDebounce)
	}
	if settings.Index.MaxSearchHits != 30 {
		t.Errorf("Expected max search hits 30, got %d", settings.Index.MaxSearchHits)
	}
}

// --- ValidateSettings tests ---

func validSettings() *Settings {
	return &Settings{
		Transport: "stdio",
		Index: IndexSettings{
			Roots:         []string{"/a"},
			BaseDir:       "/tmp/codeindex",
			MaxFileSize:   1024,
			BatchSize:     100,
			WatchDebounce: time.Second,
			MaxSearchHits: 20,
		},
	}
}

func TestValidateSettings_Valid(t *testing.T) {
	if err := ValidateSettings(validSettings()); err != nil {
		t.Errorf("Expected no error for valid settings, got: %v", err)
	}
}

func TestValidateSettings_InvalidTransport(t *testing.T) {
	s := validSettings()
	s.Transport = "sse"
	err := ValidateSettings(s)
	if err == nil {
		t.Fatal("Expected error for non-stdio transport")
	}
	if !strings.Contains(err.Error(), "transport must be") {
		t.Errorf("Expected 'transport must be' in error, got: %v", err)
	}
}

func TestValidateSettings_NoRoots(t *testing.T) {
	s := validSettings()
	s.Index.Roots = nil
	err := ValidateSettings(s)
	if err == nil {
		t.Fatal("Expected error for no roots")
	}
	if !strings.Contains(err.Error(), "at least one --root") {
		t.Errorf("Expected 'at least one --root' in error, got: %v", err)
	}
}

func TestValidateSettings_EmptyBaseDir(t *testing.T) {
	s := validSettings()
	s.Index.BaseDir = ""
	err := ValidateSettings(s)
	if err == nil {
		t.Fatal("Expected error for empty base dir")
	}
}

func TestValidateSettings_NonPositiveFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"max file size", func(s *Settings) { s.Index.MaxFileSize = 0 }},
		{"batch size", func(s *Settings) { s.Index.BatchSize = 0 }},
		{"watch debounce", func(s *Settings) { s.Index.WatchDebounce = 0 }},
		{"max search hits", func(s *Settings) { s.Index.MaxSearchHits = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			if err := ValidateSettings(s); err == nil {
				t.Fatalf("Expected error when %s is non-positive", tt.name)
			}
		})
	}
}

// --- Helper function tests ---

func TestExpandHomeDir(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"tilde prefix", "~/test", filepath.Join(home, "test")},
		{"tilde only", "~", home},
		{"no tilde", "/absolute/path", "/absolute/path"},
		{"tilde in middle", "/path/~/test", "/path/~/test"},
		{"relative path", "relative/path", "relative/path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandHomeDir(tt.input)
			if result != tt.expected {
				t.Errorf("expandHomeDir(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFilterEmptyStrings(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"no empties", []string{"a", "b", "c"}, []string{"a", "b", "c"}},
		{"with empties", []string{"a", "", "b", "", "c"}, []string{"a", "b", "c"}},
		{"all empties", []string{"", "", ""}, nil},
		{"nil input", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filterEmptyStrings(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("filterEmptyStrings(%v) = %v, want %v", tt.input, result, tt.expected)
				return
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("filterEmptyStrings(%v) = %v, want %v", tt.input, result, tt.expected)
					break
				}
			}
		})
	}
}

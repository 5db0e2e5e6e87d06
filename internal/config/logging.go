package config

import (
	"context"
	"log/slog"
)

// Log logs each resolved setting as its own record
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	logger.InfoContext(ctx, "Config: index.roots", "value", s.Index.Roots)
	logger.InfoContext(ctx, "Config: index.base_dir", "value", s.Index.BaseDir)
	logger.InfoContext(ctx, "Config: index.exclude_patterns", "count", len(s.Index.ExcludePatterns))
	logger.InfoContext(ctx, "Config: index.include_patterns", "count", len(s.Index.IncludePatterns))
	logger.InfoContext(ctx, "Config: index.max_file_size", "value", s.Index.MaxFileSize)
	logger.InfoContext(ctx, "Config: index.batch_size", "value", s.Index.BatchSize)
	logger.InfoContext(ctx, "Config: index.watch_debounce", "value", s.Index.WatchDebounce)
	logger.InfoContext(ctx, "Config: index.build_timeout", "value", s.Index.BuildTimeout)
	logger.InfoContext(ctx, "Config: index.max_search_hits", "value", s.Index.MaxSearchHits)
}

// IndexSettingsLogValue returns a slog.Value for IndexSettings
func IndexSettingsLogValue(s IndexSettings) slog.Value {
	return slog.GroupValue(
		slog.Any("roots", s.Roots),
		slog.String("base_dir", s.BaseDir),
		slog.Int("exclude_patterns", len(s.ExcludePatterns)),
		slog.Int("include_patterns", len(s.IncludePatterns)),
		slog.Int64("max_file_size", s.MaxFileSize),
		slog.Int("batch_size", s.BatchSize),
		slog.Duration("watch_debounce", s.WatchDebounce),
		slog.Duration("build_timeout", s.BuildTimeout),
		slog.Int("max_search_hits", s.MaxSearchHits),
	)
}

// SettingsLogValue returns a slog.Value for Settings
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.Any("index", IndexSettingsLogValue(s.Index)),
	)
}

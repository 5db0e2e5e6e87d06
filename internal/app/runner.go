package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/sourcewatch/codeindex/internal/builder"
	"github.com/sourcewatch/codeindex/internal/config"
	"github.com/sourcewatch/codeindex/internal/domain"
	"github.com/sourcewatch/codeindex/internal/indexpool"
	"github.com/sourcewatch/codeindex/internal/lock"
	"github.com/sourcewatch/codeindex/internal/manifest"
	"github.com/sourcewatch/codeindex/internal/mapper"
	mcputil "github.com/sourcewatch/codeindex/internal/mcp"
	"github.com/sourcewatch/codeindex/internal/watch"
)

// RunParams contains dependencies for the run function
type RunParams struct {
	LoadSettings      func(*pflag.FlagSet) (*config.Settings, error)
	ValidSettings     func(*config.Settings) error
	CreateServer      func(*config.Settings) (*mcp.Server, func(), error)
	CustomIOTransport mcp.Transport // Optional: for testing with custom IO
}

// DefaultRunParams returns production dependencies
func DefaultRunParams() RunParams {
	return RunParams{
		LoadSettings:  config.LoadSettingsWithFlags,
		ValidSettings: config.ValidateSettings,
		CreateServer:  CreateMCPServer,
	}
}

// RunWithDeps executes the server with the provided dependencies
func RunWithDeps(ctx context.Context, params RunParams, flags *pflag.FlagSet, version string) error {
	// Load settings
	settings, err := params.LoadSettings(flags)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Validate settings for conflicting configurations
	if err := params.ValidSettings(settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Configure logging - always use stderr to avoid buffering issues
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting code index MCP server", "version", version)
	config.Log(settings)

	mcpServer, cleanup, err := params.CreateServer(settings)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Use custom transport if provided (for testing), otherwise use stdio
	transport := params.CustomIOTransport
	if transport == nil {
		transport = &mcp.StdioTransport{}
	}
	return mcpServer.Run(ctx, transport)
}

// CreateMCPServer opens the index pools, brings them up to date with the
// watched roots, starts the filesystem watcher, and returns the MCP
// server with search_code and autocomplete registered.
func CreateMCPServer(settings *config.Settings) (*mcp.Server, func(), error) {
	svc, err := newIndexService(&settings.Index)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create index service: %w", err)
	}

	if err := svc.initialBuild(); err != nil {
		// The pools may still hold a usable previous build; serve that
		// rather than refusing to start.
		slog.Error("Initial index build failed", "error", err)
	}

	if err := svc.watcher.Start(); err != nil {
		svc.close()
		return nil, nil, fmt.Errorf("failed to start filesystem watcher: %w", err)
	}

	server := mcputil.CreateServer(mcputil.ServerConfig{
		Name:          "codeindexer",
		Version:       "1.0.0",
		CodePool:      svc.codePool,
		HintPool:      svc.hintPool,
		MaxSearchHits: settings.Index.MaxSearchHits,
	})

	return server, svc.close, nil
}

// indexService bundles everything CreateMCPServer wires together: the
// two pools, the builder over them, the file filter, the watcher, and
// the on-disk bookkeeping (manifest + build lock).
type indexService struct {
	settings *config.IndexSettings

	codePool *indexpool.Pool
	hintPool *indexpool.Pool
	builder  *builder.Builder
	filter   *builder.FileFilter
	watcher  *watch.Watcher

	manifest     *manifest.Manifest
	manifestPath string
	buildLock    *lock.BuildLock
}

func newIndexService(settings *config.IndexSettings) (*indexService, error) {
	if err := os.MkdirAll(settings.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir %s: %w", settings.BaseDir, err)
	}

	codePool, err := indexpool.Open(filepath.Join(settings.BaseDir, "code.bleve"), mapper.NewCodeIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("open code index: %w", err)
	}
	hintPool, err := indexpool.Open(filepath.Join(settings.BaseDir, "hint.bleve"), mapper.NewHintIndexMapping())
	if err != nil {
		_ = codePool.Close()
		return nil, fmt.Errorf("open hint index: %w", err)
	}

	bld := builder.New("codeindex", codePool, hintPool)
	filter := builder.NewFileFilter(settings.ExcludePatterns, settings.IncludePatterns, settings.MaxFileSize)

	watcher, err := watch.New(settings.Roots, filter, bld, settings.WatchDebounce)
	if err != nil {
		_ = hintPool.Close()
		_ = codePool.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	manifestPath := filepath.Join(settings.BaseDir, manifest.Filename)
	mf, err := manifest.Load(manifestPath)
	if err != nil {
		slog.Warn("Failed to load manifest, starting fresh", "path", manifestPath, "error", err)
		mf = manifest.New()
	}

	return &indexService{
		settings:     settings,
		codePool:     codePool,
		hintPool:     hintPool,
		builder:      bld,
		filter:       filter,
		watcher:      watcher,
		manifest:     mf,
		manifestPath: manifestPath,
		buildLock:    lock.New(filepath.Join(settings.BaseDir, "build.lock")),
	}, nil
}

// initialBuild performs a full batch build of every watched root that
// needs one, drops documents for roots no longer watched, and persists
// the manifest. Only one cooperating process builds at a time: if the
// build lock is already held, the build is skipped here and served by
// whoever holds it.
func (s *indexService) initialBuild() error {
	acquired, err := s.buildLock.Acquire()
	if err != nil {
		return fmt.Errorf("acquire build lease: %w", err)
	}
	if !acquired {
		slog.Info("Build lease held elsewhere, skipping initial build", "path", s.buildLock.Path(), "holder", s.buildLock.Holder())
		return nil
	}
	defer func() {
		if err := s.buildLock.Release(); err != nil {
			slog.Error("Failed to release build lease", "error", err)
		}
	}()

	for _, stale := range s.manifest.RemoveStaleRoots(s.settings.Roots) {
		q := bleve.NewPrefixQuery(stale)
		q.SetField(domain.UntokenizedField(domain.CodeFieldFilePath))
		if err := s.codePool.Delete(q); err != nil {
			slog.Error("Failed to drop documents for removed root", "root", stale, "error", err)
			continue
		}
		slog.Info("Dropped documents for removed root", "root", stale)
	}

	cancel := builder.NewCancelToken()
	var timer *time.Timer
	if s.settings.BuildTimeout > 0 {
		timer = time.AfterFunc(s.settings.BuildTimeout, cancel.Cancel)
		defer timer.Stop()
	}

	for _, root := range s.settings.Roots {
		if !s.manifest.NeedsFullBuild(root) {
			continue
		}

		state := manifest.RootState{Path: root}
		files, err := builder.CollectFiles(root, s.filter)
		if err != nil {
			state.Error = err.Error()
			s.manifest.SetRootState(root, state)
			slog.Error("Failed to collect files for root", "root", root, "error", err)
			continue
		}

		failed, err := s.builder.BuildByBatch(files, true, false, false, cancel, s.settings.BatchSize)
		if err != nil {
			state.Error = err.Error()
			s.manifest.SetRootState(root, state)
			slog.Error("Full build failed for root", "root", root, "error", err)
			continue
		}
		if len(failed) > 0 {
			slog.Warn("Some files failed to index", "root", root, "failed", len(failed))
		}

		state.LastFullSync = time.Now().UTC()
		state.FileCount = len(files) - len(failed)
		s.manifest.SetRootState(root, state)
		slog.Info("Indexed root", "root", root, "files", state.FileCount)
	}

	if err := s.builder.Commit(); err != nil {
		return fmt.Errorf("commit after initial build: %w", err)
	}

	s.manifest.UpdateLastBuild()
	if err := s.manifest.Save(s.manifestPath); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// close stops the watcher, commits whatever it staged, and closes both
// pools. Safe to call after a partially failed startup.
func (s *indexService) close() {
	if err := s.watcher.Stop(); err != nil {
		slog.Error("Failed to stop watcher", "error", err)
	}
	if err := s.builder.Commit(); err != nil {
		slog.Error("Failed to commit on shutdown", "error", err)
	}
	if err := s.manifest.Save(s.manifestPath); err != nil {
		slog.Error("Failed to save manifest on shutdown", "error", err)
	}
	if err := s.hintPool.Close(); err != nil {
		slog.Error("Failed to close hint index", "error", err)
	}
	if err := s.codePool.Close(); err != nil {
		slog.Error("Failed to close code index", "error", err)
	}
}

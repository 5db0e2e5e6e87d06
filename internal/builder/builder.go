// Package builder implements the CodeIndexBuilder: the sole orchestrator
// that keeps a code index and a hint index coherent as files are
// ingested, updated, renamed, and deleted.
package builder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/sourcewatch/codeindex/internal/domain"
	"github.com/sourcewatch/codeindex/internal/indexpool"
	"github.com/sourcewatch/codeindex/internal/mapper"
	"github.com/sourcewatch/codeindex/internal/segmenter"
)

// DefaultBatchSize is used by BuildByBatch when the caller passes <= 0.
const DefaultBatchSize = 10000

// DefaultWorkerCount bounds the parallel fan-out of BuildByBatch.
const DefaultWorkerCount = 8

// ambiguityCheckHits bounds the search used to detect whether more than
// one document matches a supposedly-unique file path.
const ambiguityCheckHits = 10

// unboundedMaxHits bounds searches that must observe every match, such
// as the prefix search behind RenameFolder: rewriting only the first
// hit would strand the rest of the folder under the old path.
const unboundedMaxHits = 1_000_000

const allIndexedPageSize = 1000

var allCodeFields = []string{
	domain.CodeFieldCodePK,
	domain.CodeFieldFileName,
	domain.CodeFieldFileExtension,
	domain.CodeFieldFilePath,
	domain.CodeFieldContent,
	domain.CodeFieldIndexDate,
	domain.CodeFieldLastWriteTimeUtc,
	domain.CodeFieldInfo,
}

// Builder is the orchestrator. It owns two IndexPool handles and a Name
// used in log messages, and is the only component aware of the coupling
// between them.
type Builder struct {
	Name string

	codePool *indexpool.Pool
	hintPool *indexpool.Pool

	// stagingLock serializes flushes against in-flight staging:
	// stagers (BuildByBatch workers) take the shared side, the flusher
	// takes the exclusive side.
	stagingLock sync.RWMutex

	workerCount int
}

// New constructs a Builder over the given code and hint index pools.
func New(name string, codePool, hintPool *indexpool.Pool) *Builder {
	return &Builder{
		Name:        name,
		codePool:    codePool,
		hintPool:    hintPool,
		workerCount: DefaultWorkerCount,
	}
}

// Create indexes a single new file with no dedup against other files.
// It writes the code document without committing and upserts every
// hint word extracted from its content.
func (b *Builder) Create(fi FileInfo) (Result, error) {
	content, err := os.ReadFile(fi.Path)
	if err != nil {
		return FailedWithIoException, fmt.Errorf("builder %s: read %s: %w", b.Name, fi.Path, err)
	}

	src := newCodeSource(fi, content)
	id, doc := mapper.ToDocument(src)

	if err := b.codePool.Build(map[string]any{id: doc}, false, false, false); err != nil {
		return FailedWithError, fmt.Errorf("builder %s: create %s: %w", b.Name, fi.Path, err)
	}
	if err := b.upsertHintWords(src.Content); err != nil {
		return FailedWithError, fmt.Errorf("builder %s: create %s: %w", b.Name, fi.Path, err)
	}

	slog.Info("indexed file", "builder", b.Name, "path", fi.Path)
	return Successful, nil
}

// Update re-indexes a modified file. Stale hint words that were
// exclusive to the previous content are not pruned; they linger until
// the hint index is rebuilt.
func (b *Builder) Update(fi FileInfo, cancel *CancelToken) (Result, error) {
	if cancel.Cancelled() {
		return 0, ErrCancelled
	}

	content, err := os.ReadFile(fi.Path)
	if err != nil {
		return FailedWithIoException, fmt.Errorf("builder %s: read %s: %w", b.Name, fi.Path, err)
	}

	if cancel.Cancelled() {
		return 0, ErrCancelled
	}

	existing, err := b.findByFilePath(fi.Path, ambiguityCheckHits)
	if err != nil {
		return FailedWithError, fmt.Errorf("builder %s: update %s: %w", b.Name, fi.Path, err)
	}

	src := newCodeSource(fi, content)
	if len(existing) > 0 {
		src.CodePK = existing[0].CodePK
	}
	id, doc := mapper.ToDocument(src)

	term := bleve.NewTermQuery(fi.Path)
	term.SetField(domain.UntokenizedField(domain.CodeFieldFilePath))
	if err := b.codePool.Update(term, id, doc); err != nil {
		return FailedWithError, fmt.Errorf("builder %s: update %s: %w", b.Name, fi.Path, err)
	}

	if cancel.Cancelled() {
		return 0, ErrCancelled
	}

	if err := b.upsertHintWords(src.Content); err != nil {
		return FailedWithError, fmt.Errorf("builder %s: update %s: %w", b.Name, fi.Path, err)
	}

	slog.Info("updated file", "builder", b.Name, "path", fi.Path)
	return Successful, nil
}

// Delete removes the code document for path. Its hint words are not
// removed; they linger until the hint index is rebuilt.
func (b *Builder) Delete(path string) (Result, error) {
	term := bleve.NewTermQuery(path)
	term.SetField(domain.UntokenizedField(domain.CodeFieldFilePath))
	if err := b.codePool.Delete(term); err != nil {
		return FailedWithError, fmt.Errorf("builder %s: delete %s: %w", b.Name, path, err)
	}
	slog.Info("deleted file", "builder", b.Name, "path", path)
	return Successful, nil
}

// RenameFile relocates the single code document matching oldPath to
// newPath, preserving its CodePK. If no document matches oldPath it
// falls back to Create(newPath), covering template-rename races. More
// than one match is treated as an ambiguous rename and fails without
// partial mutation.
func (b *Builder) RenameFile(oldPath, newPath string) (Result, error) {
	matches, err := b.findByFilePath(oldPath, ambiguityCheckHits)
	if err != nil {
		return FailedWithError, fmt.Errorf("builder %s: rename_file %s: %w", b.Name, oldPath, err)
	}

	switch len(matches) {
	case 0:
		info, statErr := os.Stat(newPath)
		lastWrite := time.Now().UTC()
		if statErr == nil {
			lastWrite = info.ModTime().UTC()
		}
		return b.Create(FileInfo{Path: newPath, LastWriteTimeUtc: lastWrite})
	case 1:
		src := matches[0]
		src.FilePath = newPath
		src.FileName = filepath.Base(newPath)
		src.FileExtension = fileExtension(newPath)
		id, doc := mapper.ToDocument(src)

		pk := bleve.NewTermQuery(src.CodePK)
		pk.SetField(domain.CodeFieldCodePK)
		if err := b.codePool.Update(pk, id, doc); err != nil {
			return FailedWithError, fmt.Errorf("builder %s: rename_file %s -> %s: %w", b.Name, oldPath, newPath, err)
		}
		slog.Info("renamed file", "builder", b.Name, "from", oldPath, "to", newPath)
		return Successful, nil
	default:
		slog.Warn("rename_file matched more than one document", "builder", b.Name, "path", oldPath, "matches", len(matches))
		return FailedWithError, fmt.Errorf("builder %s: ambiguous rename: %d documents match %s", b.Name, len(matches), oldPath)
	}
}

// RenameFolder rewrites FilePath for every code document whose
// untokenized path starts with oldPrefix, replacing it with newPrefix.
// It searches with a large max_hits bound rather than the single-hit
// bound called out as a likely source bug.
func (b *Builder) RenameFolder(oldPrefix, newPrefix string, cancel *CancelToken) (Result, error) {
	if cancel.Cancelled() {
		return 0, ErrCancelled
	}

	prefixQ := bleve.NewPrefixQuery(oldPrefix)
	prefixQ.SetField(domain.UntokenizedField(domain.CodeFieldFilePath))
	req := bleve.NewSearchRequest(prefixQ)
	req.Size = unboundedMaxHits
	req.Fields = allCodeFields

	result, err := b.codePool.SearchRequest(req)
	if err != nil {
		return FailedWithError, fmt.Errorf("builder %s: rename_folder %s: %w", b.Name, oldPrefix, err)
	}

	for _, hit := range result.Hits {
		if cancel.Cancelled() {
			return 0, ErrCancelled
		}

		src := mapper.FromFields(hit.Fields)
		newPath := newPrefix + strings.TrimPrefix(src.FilePath, oldPrefix)
		src.FilePath = newPath
		src.FileName = filepath.Base(newPath)
		src.FileExtension = fileExtension(newPath)
		id, doc := mapper.ToDocument(src)

		pk := bleve.NewTermQuery(src.CodePK)
		pk.SetField(domain.CodeFieldCodePK)
		if err := b.codePool.Update(pk, id, doc); err != nil {
			return FailedWithError, fmt.Errorf("builder %s: rename_folder %s -> %s: %w", b.Name, oldPrefix, newPrefix, err)
		}
	}

	slog.Info("renamed folder", "builder", b.Name, "from", oldPrefix, "to", newPrefix, "count", len(result.Hits))
	return Successful, nil
}

// GetAllIndexed enumerates every code document's path and last-write
// timestamp.
func (b *Builder) GetAllIndexed() ([]IndexedFile, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Fields = []string{domain.CodeFieldFilePath, domain.CodeFieldLastWriteTimeUtc}

	var out []IndexedFile
	for {
		req.From = len(out)
		req.Size = allIndexedPageSize
		result, err := b.codePool.SearchRequest(req)
		if err != nil {
			return nil, fmt.Errorf("builder %s: get_all_indexed: %w", b.Name, err)
		}
		for _, hit := range result.Hits {
			src := mapper.FromFields(hit.Fields)
			out = append(out, IndexedFile{Path: src.FilePath, LastWriteTimeUtc: src.LastWriteTimeUtc})
		}
		if len(result.Hits) == 0 || uint64(len(out)) >= result.Total {
			break
		}
	}
	return out, nil
}

// DeleteAll forwards to both pools.
func (b *Builder) DeleteAll() error {
	if err := b.codePool.DeleteAll(); err != nil {
		return fmt.Errorf("builder %s: delete_all code: %w", b.Name, err)
	}
	if err := b.hintPool.DeleteAll(); err != nil {
		return fmt.Errorf("builder %s: delete_all hint: %w", b.Name, err)
	}
	return nil
}

// Commit commits both pools.
func (b *Builder) Commit() error {
	if err := b.codePool.Commit(); err != nil {
		return fmt.Errorf("builder %s: commit code: %w", b.Name, err)
	}
	if err := b.hintPool.Commit(); err != nil {
		return fmt.Errorf("builder %s: commit hint: %w", b.Name, err)
	}
	return nil
}

// findByFilePath returns every code document whose untokenized FilePath
// equals path, up to maxHits, with every field populated.
func (b *Builder) findByFilePath(path string, maxHits int) ([]domain.CodeSource, error) {
	term := bleve.NewTermQuery(path)
	term.SetField(domain.UntokenizedField(domain.CodeFieldFilePath))
	req := bleve.NewSearchRequest(term)
	req.Size = maxHits
	req.Fields = allCodeFields

	result, err := b.codePool.SearchRequest(req)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CodeSource, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, mapper.FromFields(hit.Fields))
	}
	return out, nil
}

// upsertHintWords extracts the distinct hint words from content and
// upserts each into the hint pool.
func (b *Builder) upsertHintWords(content string) error {
	seen := make(map[string]struct{})
	for _, w := range segmenter.Segment(content) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}

		word := mapper.NewCodeWord(w)
		id, doc := mapper.ToHintDocument(word)
		term := bleve.NewTermQuery(word.Word)
		term.SetField(domain.UntokenizedField(domain.HintFieldWord))
		if err := b.hintPool.Update(term, id, doc); err != nil {
			return fmt.Errorf("upsert hint word %q: %w", w, err)
		}
	}
	return nil
}

func newCodeSource(fi FileInfo, content []byte) domain.CodeSource {
	return domain.CodeSource{
		FileName:         filepath.Base(fi.Path),
		FileExtension:    fileExtension(fi.Path),
		FilePath:         fi.Path,
		Content:          string(content),
		IndexDate:        time.Now().UTC(),
		LastWriteTimeUtc: fi.LastWriteTimeUtc,
		Info:             fi.Info,
	}
}

func fileExtension(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

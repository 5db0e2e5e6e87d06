package builder

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/sourcewatch/codeindex/internal/domain"
	"github.com/sourcewatch/codeindex/internal/mapper"
	"github.com/sourcewatch/codeindex/internal/segmenter"
)

// BuildByBatch ingests files in parallel across a worker pool, staging
// documents and deduplicated hint words, flushing whenever the staged
// document count reaches batchSize and once more for any remainder.
// Files that fail to read or map are recorded in the returned
// failed_files list; processing continues past them. Cancellation is
// checked before each file and before each flush and, once observed,
// stops iteration and is reported via ErrCancelled.
func (b *Builder) BuildByBatch(files []FileInfo, commit, triggerMerge, applyDeletes bool, cancel *CancelToken, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	state := newBatchState()

	var failedMu sync.Mutex
	var failed []string
	recordFailure := func(path string) {
		failedMu.Lock()
		failed = append(failed, path)
		failedMu.Unlock()
	}

	sem := make(chan struct{}, b.workerCount)
	var wg sync.WaitGroup
	var cancelledMu sync.Mutex
	cancelled := false

	for _, fi := range files {
		if cancel.Cancelled() {
			cancelledMu.Lock()
			cancelled = true
			cancelledMu.Unlock()
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(fi FileInfo) {
			defer wg.Done()
			defer func() { <-sem }()

			if cancel.Cancelled() {
				return
			}

			if err := b.stageFile(state, fi); err != nil {
				slog.Error("failed to stage file", "builder", b.Name, "path", fi.Path, "error", err)
				recordFailure(fi.Path)
				return
			}

			if state.count() >= batchSize {
				if cancel.Cancelled() {
					return
				}
				if err := b.flushBatch(state, commit, triggerMerge, applyDeletes); err != nil {
					slog.Error("failed to flush batch", "builder", b.Name, "error", err)
				}
			}
		}(fi)
	}
	wg.Wait()

	cancelledMu.Lock()
	wasCancelled := cancelled
	cancelledMu.Unlock()

	if wasCancelled || cancel.Cancelled() {
		return failed, ErrCancelled
	}

	if err := b.flushBatch(state, commit, triggerMerge, applyDeletes); err != nil {
		return failed, fmt.Errorf("builder %s: build_by_batch final flush: %w", b.Name, err)
	}
	return failed, nil
}

// stageFile reads one file, maps it to a code document, extracts its
// hint words, and adds both to the batch's staging dictionaries under
// the shared side of stagingLock.
func (b *Builder) stageFile(state *batchState, fi FileInfo) error {
	b.stagingLock.RLock()
	defer b.stagingLock.RUnlock()

	content, err := os.ReadFile(fi.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", fi.Path, err)
	}

	src := newCodeSource(fi, content)
	id, doc := mapper.ToDocument(src)

	words := extractHintEntries(src.Content)
	state.stage(id, doc, words)
	return nil
}

func extractHintEntries(content string) []hintEntryKeyed {
	var out []hintEntryKeyed
	for _, w := range segmenter.Segment(content) {
		word := mapper.NewCodeWord(w)
		id, doc := mapper.ToHintDocument(word)
		out = append(out, hintEntryKeyed{word: word.Word, id: id, doc: doc})
	}
	return out
}

// flushBatch drains the staged code documents and hint words and writes
// them to both pools. It takes the exclusive side of stagingLock so no
// stager observes a half-drained batch.
func (b *Builder) flushBatch(state *batchState, commit, triggerMerge, applyDeletes bool) error {
	b.stagingLock.Lock()
	docs, words := state.drain()
	b.stagingLock.Unlock()

	if len(docs) == 0 && len(words) == 0 {
		return nil
	}

	if len(docs) > 0 {
		if err := b.codePool.Build(docs, commit, triggerMerge, applyDeletes); err != nil {
			return fmt.Errorf("flush code documents: %w", err)
		}
	}

	for word, entry := range words {
		term := bleve.NewTermQuery(word)
		term.SetField(domain.UntokenizedField(domain.HintFieldWord))
		if err := b.hintPool.Update(term, entry.id, entry.doc); err != nil {
			return fmt.Errorf("flush hint word %q: %w", word, err)
		}
	}

	// Treat the commit flags uniformly across both pools: the code pool
	// flushed above under the same condition.
	if (commit || triggerMerge || applyDeletes) && len(words) > 0 {
		if err := b.hintPool.Commit(); err != nil {
			return fmt.Errorf("commit hint pool: %w", err)
		}
	}

	slog.Info("flushed batch", "builder", b.Name, "documents", len(docs), "hint_words", len(words))
	return nil
}

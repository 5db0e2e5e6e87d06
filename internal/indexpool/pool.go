// Package indexpool implements a concurrency-safe handle to one on-disk
// Bleve index directory, multiplexing many concurrent readers against a
// single writer with explicit reader-freshness control.
package indexpool

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Pool is a concurrency-safe handle to one on-disk inverted index
// directory. Any number of goroutines may concurrently call Build,
// Update, Delete, Search, and Commit.
//
// Two locks guard two different things:
//   - pendingMu guards the in-memory batch of staged but not-yet-durable
//     writes. Stagers (Build/Update/Delete) take this lock, plus, for
//     Update/Delete, the shared side of readerMu to resolve matching ids,
//     so they never block a concurrent Search.
//   - readerMu guards the visible state of the index: Search takes the
//     shared side, Commit takes the exclusive side to flush the pending
//     batch and make it visible. Searches never block other searches.
type Pool struct {
	path string

	pendingMu sync.Mutex
	pending   *bleve.Batch

	readerMu sync.RWMutex
	index    bleve.Index
}

// Open constructs a Pool backed by the index directory at path, creating
// it with the given mapping if it doesn't already exist.
func Open(path string, indexMapping mapping.IndexMapping) (*Pool, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		slog.Info("opened existing index", "path", path)
		return newPool(path, idx), nil
	}

	if err := os.MkdirAll(path[:lastSep(path)], 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index parent directory: %w", err)
	}

	idx, err = bleve.New(path, indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index at %s: %w", path, err)
	}
	slog.Info("created new index", "path", path)
	return newPool(path, idx), nil
}

func newPool(path string, idx bleve.Index) *Pool {
	return &Pool{
		path:    path,
		index:   idx,
		pending: idx.NewBatch(),
	}
}

func lastSep(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return i
		}
	}
	return 0
}

// Build stages docs (id -> document body pairs) for indexing. If commit,
// triggerMerge, or applyDeletes is true, the staged batch (including
// anything staged by a prior call) is flushed immediately; the three
// flags are treated uniformly. triggerMerge/applyDeletes have no
// independent meaning against Bleve's scorch engine (it merges and
// reclaims space on its own schedule) and are accepted for interface
// compatibility only.
func (p *Pool) Build(docs map[string]any, commit, triggerMerge, applyDeletes bool) error {
	p.pendingMu.Lock()
	for id, doc := range docs {
		if err := p.pending.Index(id, doc); err != nil {
			p.pendingMu.Unlock()
			return fmt.Errorf("indexpool: failed to stage document %s: %w", id, err)
		}
	}
	p.pendingMu.Unlock()

	if commit || triggerMerge || applyDeletes {
		return p.Commit()
	}
	return nil
}

// Update atomically deletes every document matching term, then stages
// doc for indexing. When term matches nothing, this acts as an insert.
// The net effect is pending until the next Commit.
func (p *Pool) Update(term query.Query, id string, doc any) error {
	if err := p.stageDeleteByQuery(term); err != nil {
		return err
	}

	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	if err := p.pending.Index(id, doc); err != nil {
		return fmt.Errorf("indexpool: failed to stage update for %s: %w", id, err)
	}
	return nil
}

// Delete removes all documents matching q, pending until the next
// Commit.
func (p *Pool) Delete(q query.Query) error {
	return p.stageDeleteByQuery(q)
}

// DeleteAll removes every document, pending until the next Commit.
func (p *Pool) DeleteAll() error {
	return p.stageDeleteByQuery(bleve.NewMatchAllQuery())
}

func (p *Pool) stageDeleteByQuery(q query.Query) error {
	ids, err := p.matchingIDs(q)
	if err != nil {
		return err
	}

	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for _, id := range ids {
		p.pending.Delete(id)
	}
	return nil
}

// matchingIDs runs q against the currently visible (committed) index and
// returns every matching document ID.
func (p *Pool) matchingIDs(q query.Query) ([]string, error) {
	p.readerMu.RLock()
	defer p.readerMu.RUnlock()

	req := bleve.NewSearchRequest(q)
	req.Size = 0
	req.Fields = nil

	var ids []string
	for {
		req.From = len(ids)
		req.Size = searchPageSize
		result, err := p.index.Search(req)
		if err != nil {
			return nil, fmt.Errorf("indexpool: failed to resolve delete predicate: %w", err)
		}
		for _, hit := range result.Hits {
			ids = append(ids, hit.ID)
		}
		if uint64(len(ids)) >= result.Total || len(result.Hits) == 0 {
			break
		}
	}
	return ids, nil
}

const searchPageSize = 1000

// Search returns up to maxHits documents visible to the current,
// already-committed state of the index. It takes the shared side of
// readerMu, so any number of searches may run concurrently; they only
// ever wait behind an in-flight Commit.
func (p *Pool) Search(q query.Query, maxHits int) (*bleve.SearchResult, error) {
	p.readerMu.RLock()
	defer p.readerMu.RUnlock()

	req := bleve.NewSearchRequest(q)
	req.Size = maxHits
	result, err := p.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("indexpool: search failed: %w", err)
	}
	return result, nil
}

// SearchRequest runs a caller-constructed request (for field selection,
// highlighting, and similar options the simple Search helper doesn't
// expose) against the current committed state.
func (p *Pool) SearchRequest(req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	p.readerMu.RLock()
	defer p.readerMu.RUnlock()

	result, err := p.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("indexpool: search failed: %w", err)
	}
	return result, nil
}

// Commit flushes the pending batch to disk, then invalidates the
// currently cached reader so the next Search observes every change
// staged so far. It takes the exclusive side of readerMu: no Search runs
// concurrently with the flush, preventing torn reads.
func (p *Pool) Commit() error {
	p.pendingMu.Lock()
	batch := p.pending
	p.pending = p.index.NewBatch()
	p.pendingMu.Unlock()

	if batch.Size() == 0 {
		return nil
	}

	p.readerMu.Lock()
	defer p.readerMu.Unlock()
	if err := p.index.Batch(batch); err != nil {
		return fmt.Errorf("indexpool: commit failed: %w", err)
	}
	return nil
}

// Close closes the underlying index. It does NOT commit: a missed
// Commit before Close silently drops uncommitted writes. Close is
// idempotent.
func (p *Pool) Close() error {
	p.readerMu.Lock()
	defer p.readerMu.Unlock()
	if p.index == nil {
		return nil
	}
	err := p.index.Close()
	p.index = nil
	if err != nil {
		return fmt.Errorf("indexpool: close failed: %w", err)
	}
	return nil
}

// DocCount returns the number of documents currently visible in the
// index (i.e. committed, not including anything only staged).
func (p *Pool) DocCount() (uint64, error) {
	p.readerMu.RLock()
	defer p.readerMu.RUnlock()
	return p.index.DocCount()
}

// Path returns the on-disk path of the index directory.
func (p *Pool) Path() string {
	return p.path
}

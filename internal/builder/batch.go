package builder

import "sync"

// batchState holds the staging dictionaries for one build_by_batch run.
// dataMu guards the maps themselves: Builder.stagingLock's shared side
// only promises that a flush isn't concurrently clearing them out from
// under a stager, it doesn't make concurrent map writes safe on its own.
type batchState struct {
	dataMu     sync.Mutex
	codeDocs   map[string]any
	wholeWords map[string]struct{}
	hintWords  map[string]hintEntry
}

type hintEntry struct {
	id  string
	doc any
}

func newBatchState() *batchState {
	return &batchState{
		codeDocs:   make(map[string]any),
		wholeWords: make(map[string]struct{}),
		hintWords:  make(map[string]hintEntry),
	}
}

// stage adds one file's code document and deduplicates its hint words
// against every word seen so far in this batch.
func (s *batchState) stage(id string, doc any, words []hintEntryKeyed) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.codeDocs[id] = doc
	for _, w := range words {
		if _, seen := s.wholeWords[w.word]; seen {
			continue
		}
		s.wholeWords[w.word] = struct{}{}
		s.hintWords[w.word] = hintEntry{id: w.id, doc: w.doc}
	}
}

type hintEntryKeyed struct {
	word string
	id   string
	doc  any
}

// count returns the number of staged code documents.
func (s *batchState) count() int {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return len(s.codeDocs)
}

// drain returns and clears the staged code documents and hint words.
func (s *batchState) drain() (map[string]any, map[string]hintEntry) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	docs, words := s.codeDocs, s.hintWords
	s.codeDocs = make(map[string]any)
	s.wholeWords = make(map[string]struct{})
	s.hintWords = make(map[string]hintEntry)
	return docs, words
}

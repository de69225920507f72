// Package refstore holds the in-memory reference index: per-file reference
// mappings plus the global not-found list.
//
// Readers work on immutable snapshots and never block. Writers replace the
// current snapshot wholesale, so a reader never observes a half-updated file
// or a half-applied project refresh.
package refstore

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Snapshot is a read-only view of the store at one point in time.
type Snapshot struct {
	files      map[string]*FileRefs
	notFound   []NotFound
	generation uint64
	epoch      uint64
}

// Get returns the file's references, or false if the file was never loaded.
func (s *Snapshot) Get(file string) (*FileRefs, bool) {
	refs, ok := s.files[file]
	return refs, ok
}

// NotFound returns a copy of the not-found list.
func (s *Snapshot) NotFound() []NotFound {
	out := make([]NotFound, len(s.notFound))
	copy(out, s.notFound)
	return out
}

// Files returns the loaded file paths in lexical order.
func (s *Snapshot) Files() []string {
	files := make([]string, 0, len(s.files))
	for f := range s.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Generation is the scan generation of the last project-wide replace.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// Epoch counts wholesale replacements (ReplaceAll and Clear).
func (s *Snapshot) Epoch() uint64 {
	return s.epoch
}

// Store is the process-wide reference index.
type Store struct {
	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[Snapshot]
}

// New creates an empty Store.
func New() *Store {
	s := &Store{}
	s.cur.Store(&Snapshot{files: map[string]*FileRefs{}})
	return s
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.cur.Load()
}

func (s *Store) Get(file string) (*FileRefs, bool) {
	return s.Snapshot().Get(file)
}

func (s *Store) NotFound() []NotFound {
	return s.Snapshot().NotFound()
}

// Put replaces a single file's entry. Prior contents are dropped, never
// merged.
func (s *Store) Put(file string, refs *FileRefs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(file, refs)
}

// PutIfEpoch replaces a file's entry only if no wholesale replacement
// happened since epoch was observed. It reports whether the entry was
// written.
func (s *Store) PutIfEpoch(file string, refs *FileRefs, epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.Load().epoch != epoch {
		return false
	}
	s.put(file, refs)
	return true
}

func (s *Store) put(file string, refs *FileRefs) {
	if refs == nil {
		refs = NewFileRefs()
	}
	old := s.cur.Load()
	files := make(map[string]*FileRefs, len(old.files)+1)
	for k, v := range old.files {
		files[k] = v
	}
	files[file] = refs
	s.cur.Store(&Snapshot{
		files:      files,
		notFound:   old.notFound,
		generation: old.generation,
		epoch:      old.epoch,
	})
}

// ReplaceAll atomically swaps every file entry and the not-found list for
// the output of scan generation gen.
func (s *Store) ReplaceAll(files map[string]*FileRefs, notFound []NotFound, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]*FileRefs, len(files))
	for k, v := range files {
		if v == nil {
			v = NewFileRefs()
		}
		next[k] = v
	}
	nf := make([]NotFound, len(notFound))
	copy(nf, notFound)
	old := s.cur.Load()
	s.cur.Store(&Snapshot{
		files:      next,
		notFound:   nf,
		generation: gen,
		epoch:      old.epoch + 1,
	})
}

// Clear drops every file entry and the not-found list.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur.Load()
	s.cur.Store(&Snapshot{
		files:      map[string]*FileRefs{},
		generation: old.generation,
		epoch:      old.epoch + 1,
	})
}

package doclink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jward/doclink/internal/refstore"
	"github.com/jward/doclink/internal/scan"
)

type scanResult struct {
	md  *Metadata
	err error
}

// fakeClient is a scan Client whose scans complete only when the test says
// so. Each ScanProject call announces itself on started.
type fakeClient struct {
	mu      sync.Mutex
	scans   []chan scanResult
	gens    []uint64 // generation tag of each scan
	started chan int

	fetchCalls int
	fetch      map[string]*FileRefs
	fetchErr   error
	fetchHook  func(file string)

	blocks map[string]string // "file:line" → block
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		started: make(chan int, 16),
		fetch:   map[string]*FileRefs{},
		blocks:  map[string]string{},
	}
}

func (f *fakeClient) ScanProject(ctx context.Context, root string) (*Metadata, error) {
	c := make(chan scanResult, 1)
	f.mu.Lock()
	f.scans = append(f.scans, c)
	gen, _ := scan.GenerationOf(ctx)
	f.gens = append(f.gens, gen)
	n := len(f.scans) - 1
	f.mu.Unlock()
	f.started <- n

	select {
	case r := <-c:
		return r.md, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeClient) FetchFileReferences(ctx context.Context, file string) (*FileRefs, error) {
	f.mu.Lock()
	f.fetchCalls++
	refs, err, hook := f.fetch[file], f.fetchErr, f.fetchHook
	f.mu.Unlock()
	if hook != nil {
		hook(file)
	}
	if err != nil {
		return nil, err
	}
	if refs == nil {
		refs = refstore.NewFileRefs()
	}
	return refs, nil
}

func (f *fakeClient) DocBlock(ctx context.Context, docFile string, line int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if body, ok := f.blocks[blockKey(docFile, line)]; ok {
		return body, nil
	}
	if docFile == "missing.md" {
		return "", ErrDocNotFound
	}
	if docFile == "broken.md" {
		return "", errors.New("disk on fire")
	}
	return "", ErrRefNotFound
}

func (f *fakeClient) complete(i int, md *Metadata, err error) {
	f.mu.Lock()
	c := f.scans[i]
	f.mu.Unlock()
	c <- scanResult{md: md, err: err}
}

func (f *fakeClient) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func blockKey(file string, line int) string {
	return fmt.Sprintf("%s:%d", file, line)
}

// memText is an in-memory TextSource.
type memText map[string]string

func (m memText) source() TextSource {
	return func(file string) ([]byte, error) {
		s, ok := m[file]
		if !ok {
			return nil, errors.New("no such file: " + file)
		}
		return []byte(s), nil
	}
}

// recorder is a Listener that records every call.
type recorder struct {
	mu        sync.Mutex
	succeeded int
	failed    [][]ReportedError
	notFound  [][]NotFound
	resolved  []resolvedCall
	fetchErrs map[string][]ReportedError
}

type resolvedCall struct {
	file string
	line int
	refs []Reference
}

func (r *recorder) ReferencesResolved(file string, line int, refs []Reference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, resolvedCall{file, line, refs})
}

func (r *recorder) RefreshSucceeded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.succeeded++
}

func (r *recorder) RefreshFailed(errs []ReportedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, errs)
}

func (r *recorder) NotFoundUpdated(nf []NotFound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound = append(r.notFound, nf)
}

func (r *recorder) FetchFailed(file string, errs []ReportedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErrs == nil {
		r.fetchErrs = map[string][]ReportedError{}
	}
	r.fetchErrs[file] = errs
}

func newTestEngine(t *testing.T, client Client, opts ...Option) *Engine {
	t.Helper()
	e := New(client, opts...)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func found(id string, from, to int, directive string) Reference {
	return Reference{
		ID:        id,
		Found:     true,
		Span:      Span{From: from, To: to},
		Directive: directive,
		Locations: []DocLocation{{File: "docs/a.md", Line: 3}},
		Query:     Query{File: "a.go", Kind: "symbol"},
	}
}

// refreshAndStart triggers a refresh and waits until its scan is running,
// so scan indexes in the fake client match generations.
func refreshAndStart(t *testing.T, e *Engine, f *fakeClient, root string) int {
	t.Helper()
	e.Refresh(root)
	return <-f.started
}

package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/jward/doclink/internal/config"
	"github.com/jward/doclink/internal/locate"
	"github.com/jward/doclink/internal/mdref"
	"github.com/jward/doclink/internal/metadata"
	"github.com/jward/doclink/internal/refstore"
)

// Step names carried in error payloads.
const (
	StepConfig   = "config loader"
	StepMarkdown = "markdown reader"
	StepCode     = "code reader"
)

// Local is an in-process scanner. It reads markdown documentation, resolves
// every code reference against the source tree, and keeps the result in an
// in-memory metadata store for cheap per-file fetches.
type Local struct {
	mu     sync.Mutex // serializes scans
	store  *metadata.Store
	stored uint64 // generation of the stored scan
	log    commonlog.Logger

	rootMu sync.RWMutex
	root   string // root of the last completed scan
}

var _ Client = (*Local)(nil)

// NewLocal creates a Local scanner backed by a fresh in-memory store.
func NewLocal() (*Local, error) {
	st, err := metadata.Open()
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return &Local{store: st, log: commonlog.GetLogger("doclink.scan")}, nil
}

// Close releases the metadata store.
func (l *Local) Close() error {
	return l.store.Close()
}

// Stats summarizes the last scan.
func (l *Local) Stats() (metadata.Stats, error) {
	return l.store.Stats()
}

// ScanProject runs the config loader, markdown reader and code reader
// steps over root and replaces the stored metadata with the result. A
// project without a settings file scans to empty metadata.
//
// A scan tagged WithGeneration older than the stored one still returns
// its metadata but leaves the store alone.
func (l *Local) ScanProject(ctx context.Context, root string) (*Metadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, stepError(StepConfig, err, nil)
	}

	cfg, err := config.Load(abs)
	if errors.Is(err, config.ErrNoConfig) {
		l.log.Infof("no %s in %s, nothing to scan", config.FileName, abs)
		return l.commit(ctx, abs, &metadata.Snapshot{})
	}
	if err != nil {
		return nil, stepError(StepConfig, err, nil)
	}

	docs, err := readDocs(ctx, cfg)
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, stepError(StepMarkdown, err, nil)
	}

	snap, err := resolveRefs(ctx, cfg, docs)
	if err != nil {
		return nil, err
	}
	l.log.Infof("scanned %s: %d docs, %d source files, %d not found",
		abs, len(docs), len(snap.Refs), len(snap.NotFound))
	return l.commit(ctx, abs, snap)
}

// commit stores snap unless a later generation is stored. Callers hold l.mu.
func (l *Local) commit(ctx context.Context, root string, snap *metadata.Snapshot) (*Metadata, error) {
	gen, tagged := GenerationOf(ctx)
	if tagged && gen < l.stored {
		l.log.Debugf("scan %d of %s superseded by %d, not stored", gen, root, l.stored)
	} else {
		if err := l.store.Replace(snap); err != nil {
			return nil, &Error{Payload: err}
		}
		if tagged {
			l.stored = gen
		}
		l.rootMu.Lock()
		l.root = root
		l.rootMu.Unlock()
	}

	md := &Metadata{
		Files:    make(map[string]*refstore.FileRefs, len(snap.Refs)),
		NotFound: snap.NotFound,
	}
	for file, refs := range snap.Refs {
		md.Files[file] = refstore.NewFileRefs(refs...)
	}
	if md.NotFound == nil {
		md.NotFound = []refstore.NotFound{}
	}
	return md, nil
}

// FetchFileReferences reads one file's references from the last scan.
// Absolute paths are made relative to the scanned root.
func (l *Local) FetchFileReferences(ctx context.Context, file string) (*refstore.FileRefs, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Payload: err}
	}
	refs, err := l.store.RefsByFile(l.rel(file))
	if err != nil {
		return nil, &Error{Payload: err}
	}
	return refstore.NewFileRefs(refs...), nil
}

// DocBlock returns the block attached to a reference in a markdown file.
// It fails with metadata.ErrDocNotFound or metadata.ErrRefNotFound.
func (l *Local) DocBlock(ctx context.Context, docFile string, line int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return l.store.DocBlock(l.rel(docFile), line)
}

func (l *Local) rel(file string) string {
	if !filepath.IsAbs(file) {
		return filepath.ToSlash(filepath.Clean(file))
	}
	l.rootMu.RLock()
	root := l.root
	l.rootMu.RUnlock()
	if root == "" {
		return filepath.ToSlash(file)
	}
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

// readDocs finds and parses every documentation file, in path order.
func readDocs(ctx context.Context, cfg *config.Config) ([]*mdref.Doc, error) {
	var paths []string
	err := filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := cfg.Rel(path)
		if d.IsDir() {
			if rel != "." && cfg.Excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if cfg.IsDoc(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	docs := make([]*mdref.Doc, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rel := range paths {
		i, rel := i, rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(filepath.Join(cfg.Root, filepath.FromSlash(rel)))
			if err != nil {
				return stepError(StepMarkdown, err, map[string]any{"file": rel})
			}
			doc, err := mdref.Parse(rel, content)
			if err != nil {
				return stepError(StepMarkdown, err, map[string]any{"file": rel})
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// pending is one reference collected from the docs, before resolution.
type pending struct {
	id        string
	source    string
	selector  string
	directive string
	locations []refstore.DocLocation
}

// RefID derives a reference id from its source file, selector and
// directive. Identical links anywhere in the docs share one id.
func RefID(source, selector, directive string) string {
	h := xxhash.New()
	_, _ = h.WriteString(source)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(selector)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(directive)
	return fmt.Sprintf("%016x", h.Sum64())
}

func collect(docs []*mdref.Doc) []*pending {
	var order []*pending
	byID := map[string]*pending{}
	for _, doc := range docs {
		for _, link := range doc.Links {
			id := RefID(link.Source, link.Selector, link.Directive)
			p, ok := byID[id]
			if !ok {
				p = &pending{id: id, source: link.Source, selector: link.Selector, directive: link.Directive}
				byID[id] = p
				order = append(order, p)
			}
			p.locations = append(p.locations, refstore.DocLocation{File: link.DocFile, Line: link.Line})
		}
	}
	return order
}

// resolveRefs is the code reader step: it locates every collected
// reference in its source file.
func resolveRefs(ctx context.Context, cfg *config.Config, docs []*mdref.Doc) (*metadata.Snapshot, error) {
	snap := &metadata.Snapshot{
		Refs:     map[string][]refstore.Reference{},
		NotFound: []refstore.NotFound{},
		Blocks:   make(map[string]map[int]string, len(docs)),
	}
	for _, doc := range docs {
		snap.Blocks[doc.File] = doc.Blocks
	}

	loc := locate.New(locate.WithScript(cfg.Root, cfg.LocatorScript))
	sources := map[string][]byte{}
	failed := map[string]any{}
	var firstErr error

	for _, p := range collect(docs) {
		if err := ctx.Err(); err != nil {
			return nil, stepError(StepCode, err, nil)
		}
		q := refstore.Query{File: p.source, Selector: p.selector, Kind: locate.KindOf(p.selector)}

		src, ok := sources[p.source]
		if !ok {
			var err error
			src, err = readSource(cfg, p.source)
			if err != nil {
				snap.NotFound = append(snap.NotFound, refstore.NotFound{
					ID: p.id, Query: q, Reason: err.Error(), Locations: p.locations,
				})
				continue
			}
			sources[p.source] = src
		}

		ref := refstore.Reference{
			ID:        p.id,
			Directive: p.directive,
			Locations: p.locations,
			Query:     q,
		}
		span, err := loc.Locate(ctx, p.source, src, p.selector)
		switch {
		case err == nil:
			ref.Found = true
			ref.Span = span
		case errors.Is(err, locate.ErrNotFound):
			snap.NotFound = append(snap.NotFound, refstore.NotFound{
				ID: p.id, Query: q, Reason: err.Error(), Locations: p.locations,
			})
		default:
			if firstErr == nil {
				firstErr = err
			}
			failed[p.id] = map[string]any{"loc": locationsPayload(p.locations)}
			continue
		}
		snap.Refs[p.source] = append(snap.Refs[p.source], ref)
	}

	if firstErr != nil {
		return nil, stepError(StepCode, firstErr, map[string]any{
			"reader": map[string]any{"references": failed},
		})
	}
	return snap, nil
}

func readSource(cfg *config.Config, rel string) ([]byte, error) {
	if cfg.Excluded(rel) {
		return nil, fmt.Errorf("file %s is excluded", rel)
	}
	src, err := os.ReadFile(filepath.Join(cfg.Root, filepath.FromSlash(rel)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file %s not found", rel)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %v", rel, err)
	}
	return src, nil
}

func locationsPayload(locs []refstore.DocLocation) []any {
	out := make([]any, len(locs))
	for i, l := range locs {
		out[i] = map[string]any{"file": l.File, "line": l.Line}
	}
	return out
}

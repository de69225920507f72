package doclink

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tliron/commonlog"

	"github.com/jward/doclink/internal/refstore"
	"github.com/jward/doclink/internal/scan"
)

// State is the refresh state of the current project.
type State int

const (
	Idle State = iota
	Scanning
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Status is a point-in-time view of the Engine for status indicators.
type Status struct {
	State      State           `json:"-"`
	StateName  string          `json:"state"`
	Root       string          `json:"root"`
	Generation uint64          `json:"generation"`
	Errors     []ReportedError `json:"errors,omitempty"`
	NotFound   int             `json:"not_found"`
}

const defaultLineCacheSize = 128

// Engine owns the reference index of one project at a time. It runs
// project refreshes against a scan Client, keeps only the newest scan's
// results, and serves queries through a QueryBuilder.
type Engine struct {
	client    Client
	store     *refstore.Store
	listener  Listener
	text      TextSource
	asyncLoad bool
	cacheSize int
	lines     *lru.Cache[uint64, []int]
	notify    *dispatcher
	log       commonlog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	root       string
	generation uint64
	state      State
	lastErrs   []ReportedError
	switching  bool // root changed and no scan of the new root applied yet
	closed     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithListener sets the receiver of refresh and query events.
func WithListener(l Listener) Option {
	return func(e *Engine) {
		e.listener = l
	}
}

// WithTextSource sets where file contents come from when translating
// spans to lines. The default reads from disk under the project root.
func WithTextSource(src TextSource) Option {
	return func(e *Engine) {
		e.text = src
	}
}

// WithAsyncLoad makes lazy single-file loads asynchronous: a query for an
// unloaded file returns no references immediately and the Listener gets
// ReferencesResolved once the load finishes.
func WithAsyncLoad(async bool) Option {
	return func(e *Engine) {
		e.asyncLoad = async
	}
}

// WithLineCacheSize bounds how many line tables are cached. Zero or less
// keeps the default.
func WithLineCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// New creates an Engine that scans through client.
func New(client Client, opts ...Option) *Engine {
	e := &Engine{
		client:    client,
		store:     refstore.New(),
		listener:  ListenerFuncs{},
		cacheSize: defaultLineCacheSize,
		log:       commonlog.GetLogger("doclink.engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cacheSize <= 0 {
		e.cacheSize = defaultLineCacheSize
	}
	// lru.New only fails for a non-positive size.
	e.lines, _ = lru.New[uint64, []int](e.cacheSize)
	if e.text == nil {
		e.text = func(file string) ([]byte, error) {
			return DiskSource(e.Root())(file)
		}
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.notify = newDispatcher()
	return e
}

// Close stops accepting refreshes, cancels in-flight work, and waits for
// it and for pending listener calls to finish. Results of cancelled scans
// are discarded.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	e.notify.close()
	return nil
}

// Wait blocks until every scan and lazy load started so far has finished
// and its listener calls have returned. Must not be called from a
// Listener.
func (e *Engine) Wait() {
	e.wg.Wait()
	e.notify.flush()
}

// Query returns a QueryBuilder over the Engine's index.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{e: e}
}

// Root returns the project root of the latest refresh.
func (e *Engine) Root() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.root
}

// Generation returns the generation of the latest refresh.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Status reports the refresh state, the errors of the last failed refresh
// and the size of the not-found list.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	errs := make([]ReportedError, len(e.lastErrs))
	copy(errs, e.lastErrs)
	return Status{
		State:      e.state,
		StateName:  e.state.String(),
		Root:       e.root,
		Generation: e.generation,
		Errors:     errs,
		NotFound:   len(e.store.NotFound()),
	}
}

// Refresh starts a scan of root and returns immediately. Every call
// supersedes scans still in flight: only the result of the newest
// generation is applied. Switching to a different root clears the index
// at once.
func (e *Engine) Refresh(root string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.root != "" && e.root != root {
		e.log.Infof("project changed from %s to %s, clearing index", e.root, root)
		e.store.Clear()
		e.switching = true
	}
	e.root = root
	e.generation++
	gen := e.generation
	e.state = Scanning
	e.wg.Add(1)
	e.mu.Unlock()

	e.log.Debugf("refresh %d of %s started", gen, root)
	go e.scan(root, gen)
}

func (e *Engine) scan(root string, gen uint64) {
	defer e.wg.Done()

	md, err := e.client.ScanProject(scan.WithGeneration(e.ctx, gen), root)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || gen != e.generation {
		e.log.Debugf("refresh %d superseded, result dropped", gen)
		return
	}

	if err != nil {
		errs := NormalizeErrors(err)
		e.state = Failed
		e.lastErrs = errs
		e.log.Warningf("refresh %d of %s failed: %s", gen, root, err)
		l := e.listener
		e.notify.submit(func() { l.RefreshFailed(errs) })
		return
	}

	var files map[string]*refstore.FileRefs
	var notFound []NotFound
	if md != nil {
		files = md.Files
		notFound = md.NotFound
	}
	e.store.ReplaceAll(files, notFound, gen)
	e.switching = false
	e.state = Ready
	e.lastErrs = nil
	e.log.Infof("refresh %d of %s applied: %d files", gen, root, len(files))

	nf := e.store.NotFound()
	l := e.listener
	e.notify.submit(func() {
		l.RefreshSucceeded()
		l.NotFoundUpdated(nf)
	})
}

// load fetches one file's references and stores them unless a project-wide
// replace happened meanwhile, in which case the replaced entry wins. It
// returns the file's entry after the load and whether one exists.
//
// Until the first scan of a new root is applied, the scanner may still
// hold the previous project, so nothing is fetched.
func (e *Engine) load(file string) (*refstore.FileRefs, bool) {
	e.mu.Lock()
	switching := e.switching
	e.mu.Unlock()
	if switching {
		e.log.Debugf("not loading %s: project switch pending", file)
		return nil, false
	}
	epoch := e.store.Snapshot().Epoch()
	refs, err := e.client.FetchFileReferences(e.ctx, file)
	if err != nil {
		errs := NormalizeErrors(err)
		e.log.Warningf("loading references of %s failed: %s", file, err)
		l := e.listener
		e.notify.submit(func() { l.FetchFailed(file, errs) })
		return e.store.Get(file)
	}
	if !e.store.PutIfEpoch(file, refs, epoch) {
		e.log.Debugf("lazy load of %s raced a refresh, keeping refreshed entry", file)
		if cur, ok := e.store.Get(file); ok {
			return cur, true
		}
		return refs, true
	}
	return refs, true
}

// loadAsync runs load in the background and reports the ranked references
// at line through the Listener.
func (e *Engine) loadAsync(file string, line int) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		refs, ok := e.load(file)
		if !ok {
			return
		}
		ranked := e.rank(file, refs, line)
		l := e.listener
		e.notify.submit(func() { l.ReferencesResolved(file, line, ranked) })
	}()
}

// Package watch triggers project refreshes when files under the project
// root change. Bursts of events are debounced into one callback.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"

	"github.com/jward/doclink/internal/config"
)

// Watcher monitors a project tree and reports changed files in batches.
type Watcher struct {
	watcher  *fsnotify.Watcher
	cfg      *config.Config
	debounce time.Duration
	onChange func(paths []string)
	log      commonlog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	flushMu sync.Mutex // held while onChange runs
}

// New creates a Watcher for cfg.Root. onChange receives the project
// relative paths that changed during one quiet period, sorted.
func New(cfg *config.Config, onChange func(paths []string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		watcher:  fw,
		cfg:      cfg,
		debounce: time.Duration(cfg.WatchDebounceMs) * time.Millisecond,
		onChange: onChange,
		log:      commonlog.GetLogger("doclink.watch"),
		ctx:      ctx,
		cancel:   cancel,
		pending:  map[string]struct{}{},
	}, nil
}

// Start adds watches for every non-excluded directory and begins
// processing events.
func (w *Watcher) Start() error {
	if err := w.addWatches(w.cfg.Root); err != nil {
		return fmt.Errorf("watch: adding watches under %s: %w", w.cfg.Root, err)
	}
	w.wg.Add(1)
	go w.processEvents()
	w.log.Infof("watching %s", w.cfg.Root)
	return nil
}

// Stop ends watching. Pending events are dropped and no callback runs
// after Stop returns.
func (w *Watcher) Stop() error {
	w.cancel()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()

	// Wait out a flush that was already running.
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	return err
}

func (w *Watcher) addWatches(root string) error {
	visited := map[string]bool{}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil || visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if rel := w.cfg.Rel(path); rel != "." && w.cfg.Excluded(rel) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.log.Warningf("failed to watch %s: %s", path, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Errorf("watcher error: %s", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	rel := w.cfg.Rel(event.Name)
	if w.cfg.Excluded(rel) {
		return
	}
	if event.Has(fsnotify.Create) {
		// New directories need their own watch.
		_ = w.addWatches(event.Name)
	}
	w.log.Debugf("%s %s", event.Op, rel)
	w.add(rel)
}

func (w *Watcher) add(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	w.pending[rel] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if w.ctx.Err() != nil || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = map[string]struct{}{}
	w.mu.Unlock()

	sort.Strings(paths)
	w.onChange(paths)
}

package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"foiahub/internal/archive"
)

// DefaultDebounce is how long a watched agency must stay quiet before it is imported.
const DefaultDebounce = 2 * time.Second

// maxWatchDepth reaches document directories of office batches:
// <agency>/<office>/<date>/<doc_location>.
const maxWatchDepth = 4

// Watcher imports an agency shortly after a new batch appears under a local
// archive. fsnotify watches are not recursive, so every directory in the
// archive down to the document level is registered.
type Watcher struct {
	source   *archive.Local
	run      RunFunc
	debounce time.Duration
	logger   *zap.Logger

	fsw    *fsnotify.Watcher
	ready  chan string
	mu     sync.Mutex
	timers map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before an import starts.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the watcher's logger.
func WithWatchLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher returns a watcher that calls run for agencies with new batches.
func NewWatcher(source *archive.Local, run RunFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		source:   source,
		run:      run,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		ready:    make(chan string),
		timers:   map[string]*time.Timer{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers the archive tree and begins processing events. Imports run
// with a context derived from ctx and cancelled by Stop.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	w.fsw = fsw
	if _, err := w.addTree(w.source.Root()); err != nil {
		_ = fsw.Close()
		return err
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop halts the watcher and waits for a running import to return. The
// underlying fsnotify watcher is released even when ctx expires first.
func (w *Watcher) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	w.mu.Lock()
	for agency, t := range w.timers {
		t.Stop()
		delete(w.timers, agency)
	}
	w.mu.Unlock()
	closeErr := w.fsw.Close()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// addTree watches dir and its subdirectories down to document depth. It
// reports whether the tree holds a batch directory.
func (w *Watcher) addTree(dir string) (bool, error) {
	var batches bool
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		depth := w.depth(p)
		if depth > maxWatchDepth {
			return filepath.SkipDir
		}
		if (depth == 2 || depth == 3) && IsDate(d.Name()) {
			batches = true
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
	return batches, err
}

// depth counts path elements below the archive root.
func (w *Watcher) depth(p string) int {
	rel, ok := w.source.Rel(p)
	if !ok {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("archive watch error", zap.Error(err))
		case agency := <-w.ready:
			if err := w.run(w.ctx, agency); err != nil {
				w.logger.Error("watched import failed", zap.String("agency", agency), zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	rel, ok := w.source.Rel(ev.Name)
	if !ok {
		return
	}
	parts := strings.Split(rel, "/")
	if ev.Has(fsnotify.Create) {
		if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
			batches, err := w.addTree(ev.Name)
			if err != nil {
				w.logger.Warn("watch new directory", zap.String("path", rel), zap.Error(err))
			}
			// A tree moved in whole raises one event at its top.
			if batches {
				w.schedule(parts[0])
				return
			}
		}
	}
	// <agency>/<date>/... or <agency>/<office>/<date>/...
	for i, part := range parts {
		if i > 0 && i <= 2 && IsDate(part) {
			w.schedule(parts[0])
			return
		}
	}
}

// schedule (re)starts the debounce timer of agency.
func (w *Watcher) schedule(agency string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[agency]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[agency] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, agency)
		w.mu.Unlock()
		select {
		case w.ready <- agency:
		case <-w.ctx.Done():
		}
	})
}

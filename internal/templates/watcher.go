package templates

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tasklattice/tasklattice/internal/types"
)

// DefaultDebounce is how long a file must stay quiet before it is imported.
const DefaultDebounce = 250 * time.Millisecond

// ImportResult reports one file import.
type ImportResult struct {
	Path     string
	Template *types.Template
	Err      error
}

// Watcher imports template files written into a directory.
//
// Editors often write a file in several steps, so each path is imported
// once it has been quiet for the debounce interval. Removing a file does not
// delete the stored template.
type Watcher struct {
	engine   *Engine
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	results  chan ImportResult
	stop     chan struct{}

	mu      sync.Mutex
	pending map[string]*pendingImport
	closed  bool
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for dir. Run starts it.
func NewWatcher(engine *Engine, dir string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat template directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template path %s is not a directory", dir)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		engine:   engine,
		dir:      dir,
		debounce: debounce,
		watcher:  fw,
		results:  make(chan ImportResult, 16),
		stop:     make(chan struct{}),
		pending:  make(map[string]*pendingImport),
	}, nil
}

// Results emits one entry per import attempt. It is closed when Run returns.
func (w *Watcher) Results() <-chan ImportResult {
	return w.results
}

// ImportExisting imports every template file already in the directory, in
// name order.
func (w *Watcher) ImportExisting(ctx context.Context) []ImportResult {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return []ImportResult{{Path: w.dir, Err: fmt.Errorf("failed to read template directory: %w", err)}}
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := FormatFor(entry.Name()); err == nil {
			paths = append(paths, filepath.Join(w.dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	out := make([]ImportResult, 0, len(paths))
	for _, p := range paths {
		tpl, err := w.engine.ImportFile(ctx, p)
		out = append(out, ImportResult{Path: p, Template: tpl, Err: err})
	}
	return out
}

// Run watches the directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.shutdown()

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch template directory %s: %w", w.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if _, err := FormatFor(event.Name); err != nil {
				continue
			}
			// Rename reports the old name; the new name arrives as Create.
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.engine.log.WithError(err).WithField("dir", w.dir).Warn("template watcher error")
		}
	}
}

// pendingImport is one armed debounce timer. A timer that fired after it
// was superseded finds a different entry in pending and does nothing.
type pendingImport struct {
	timer *time.Timer
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		p.timer.Reset(w.debounce)
		return
	}
	p := &pendingImport{}
	p.timer = time.AfterFunc(w.debounce, func() { w.fire(ctx, path, p) })
	w.pending[path] = p
}

func (w *Watcher) fire(ctx context.Context, path string, p *pendingImport) {
	w.mu.Lock()
	if w.closed || w.pending[path] != p {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	tpl, err := w.engine.ImportFile(ctx, path)
	if err != nil {
		w.engine.log.WithError(err).WithField("path", path).Warn("template import failed")
	}
	select {
	case w.results <- ImportResult{Path: path, Template: tpl, Err: err}:
	case <-ctx.Done():
	case <-w.stop:
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	close(w.stop)

	_ = w.watcher.Close()
	w.wg.Wait()
	close(w.results)
}

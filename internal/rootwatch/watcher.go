// Package rootwatch triggers a rescan when project directories appear,
// disappear, or gain or lose a classification marker file.
//
// Only the root and its immediate subdirectories are watched; the scanner
// never looks deeper, so neither does the watcher.
package rootwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mattjoyce/devdeck/internal/detect"
)

// DefaultDebounce collapses bursts such as `git clone` or `npm create`.
const DefaultDebounce = 500 * time.Millisecond

// ErrRootMissing is returned when the scan root is not a directory.
var ErrRootMissing = errors.New("scan root does not exist")

// Config configures a Watcher.
type Config struct {
	Root     string
	Exclude  []string
	Debounce time.Duration
}

// Watcher calls onChange at most once per debounce window after relevant
// filesystem activity under the root.
type Watcher struct {
	root     string
	exclude  map[string]bool
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]bool
	timer   *time.Timer
}

// New creates a watcher over cfg.Root. It does not start delivering
// callbacks until Run is called.
func New(cfg Config, onChange func(), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", cfg.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootMissing, root)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	exclude := make(map[string]bool, len(cfg.Exclude))
	for _, name := range cfg.Exclude {
		exclude[name] = true
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		exclude:  exclude,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		fsw:      fsw,
		watched:  make(map[string]bool),
	}
	if err := w.add(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("read root: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && !exclude[e.Name()] {
			if err := w.add(filepath.Join(root, e.Name())); err != nil {
				logger.Warn("cannot watch project directory", "path", e.Name(), "error", err)
			}
		}
	}
	return w, nil
}

// Watched returns the number of directories under watch.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// Run processes filesystem events until ctx is cancelled, then releases the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = w.fsw.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// handle updates the watch set and reports whether ev warrants a rescan.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	parent := filepath.Dir(ev.Name)
	name := filepath.Base(ev.Name)

	if parent == w.root {
		if w.exclude[name] {
			return false
		}
		switch {
		case ev.Has(fsnotify.Create):
			info, err := os.Stat(ev.Name)
			if err != nil || !info.IsDir() {
				return false
			}
			if err := w.add(ev.Name); err != nil {
				w.logger.Warn("cannot watch project directory", "path", name, "error", err)
			}
			return true
		case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
			return w.forget(ev.Name)
		}
		return false
	}

	return filepath.Dir(parent) == w.root && detect.IsMarker(name)
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.watched[dir] = true
	return nil
}

// forget drops a removed subdirectory. fsnotify removes the kernel watch on
// its own once the directory is gone.
func (w *Watcher) forget(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watched[dir] {
		return false
	}
	delete(w.watched, dir)
	_ = w.fsw.Remove(dir)
	return true
}

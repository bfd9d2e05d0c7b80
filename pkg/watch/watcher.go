// Package watch reloads a node configuration file when it changes and
// applies its object values to the live resource tree.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lwm2m-node/lwm2m-go/pkg/config"
	"github.com/lwm2m-node/lwm2m-go/pkg/model"
)

// DefaultDebounce collapses bursts of file events into one reload.
const DefaultDebounce = 200 * time.Millisecond

// Watcher monitors a configuration file and syncs its objects section
// into a tree.
type Watcher struct {
	watcher  *fsnotify.Watcher
	tree     *model.Tree
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu           sync.Mutex
	lastModified time.Time
	size         int64
	timer        *time.Timer

	// OnReload is called after every reload attempt with the number of
	// resources changed.
	OnReload func(changed int, err error)
}

// New creates a watcher for the configuration file at path. The file must
// exist.
func New(path string, tree *model.Tree, logger *slog.Logger) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	stat, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are seen.
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &Watcher{
		watcher:      fsWatcher,
		tree:         tree,
		path:         absPath,
		debounce:     DefaultDebounce,
		logger:       logger,
		lastModified: stat.ModTime(),
		size:         stat.Size(),
	}, nil
}

// SetDebounce changes the debounce interval. Call before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimer()
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if name, err := filepath.Abs(event.Name); err != nil || name != w.path {
				continue
			}
			w.schedule(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logError("watch error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.handleChange(ctx)
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) handleChange(ctx context.Context) {
	stat, err := os.Stat(w.path)
	if err != nil {
		w.finish(0, err)
		return
	}

	w.mu.Lock()
	if stat.ModTime().Equal(w.lastModified) && stat.Size() == w.size {
		w.mu.Unlock()
		return
	}
	w.lastModified = stat.ModTime()
	w.size = stat.Size()
	w.mu.Unlock()

	n, err := w.Reload(ctx)
	w.finish(n, err)
}

// Reload reads the file and syncs its objects into the tree.
func (w *Watcher) Reload(ctx context.Context) (int, error) {
	f, err := config.Load(w.path)
	if err != nil {
		return 0, err
	}
	return f.Objects.Sync(ctx, w.tree)
}

func (w *Watcher) finish(n int, err error) {
	if err != nil {
		w.logError("reload failed", err)
	} else if w.logger != nil {
		w.logger.Info("configuration reloaded", "path", w.path, "changed", n)
	}
	if w.OnReload != nil {
		w.OnReload(n, err)
	}
}

func (w *Watcher) logError(msg string, err error) {
	if w.logger != nil {
		w.logger.Warn(msg, "path", w.path, "error", err)
	}
}

// Package watcher reloads panel files when they change on disk.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/vk/chartgridgo/internal/fsutil"
)

const defaultDebounce = 100 * time.Millisecond

// Options configures a panel-file watcher.
type Options struct {
	// Path is the panels root, a directory or a single file.
	Path string

	// Extensions limits which files trigger callbacks.
	Extensions []string

	// Debounce is how long to wait after the last event for a file before
	// reloading it. Editors emit several events per save.
	Debounce time.Duration

	// Reload is called after a file is created or written.
	Reload func(ctx context.Context, path string)

	// Remove is called after a file is removed or renamed away.
	Remove func(ctx context.Context, path string)
}

// Watcher drives hot reload of panel files.
type Watcher struct {
	opts     Options
	notify   *fsnotify.Watcher
	rootFile string

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a watcher; Start arms it.
func New(opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	return &Watcher{opts: opts, timers: make(map[string]*time.Timer)}
}

// Start begins watching. The event loop runs until the context is canceled
// or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.notify = notify

	if err := w.addTargets(); err != nil {
		notify.Close()
		return err
	}

	go w.loop(ctx)
	return nil
}

// Close stops the watcher. Pending debounce timers are dropped.
func (w *Watcher) Close() error {
	if w.notify == nil {
		return nil
	}
	err := w.notify.Close()

	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) addTargets() error {
	info, err := os.Stat(w.opts.Path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		// Watch the parent so atomic saves (rename over the file) are seen.
		w.rootFile = w.opts.Path
		return w.notify.Add(filepath.Dir(w.opts.Path))
	}

	if err := w.notify.Add(w.opts.Path); err != nil {
		return err
	}
	return filepath.WalkDir(w.opts.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != w.opts.Path {
			return w.notify.Add(path)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.notify.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.notify.Errors:
			if !ok {
				return
			}
			logger.Warn("Panel watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if w.rootFile != "" && event.Name != w.rootFile {
		return
	}
	if !fsutil.HasAnySuffix(event.Name, w.opts.Extensions) {
		return
	}
	logger := ctxlog.FromContext(ctx)

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.debounce(event.Name, func() {
			logger.Info("Panel file changed", "path", event.Name)
			if w.opts.Reload != nil {
				w.opts.Reload(ctx, event.Name)
			}
		})
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		logger.Info("Panel file removed", "path", event.Name)
		if w.opts.Remove != nil {
			w.opts.Remove(ctx, event.Name)
		}
	}
}

// debounce schedules fn for the path, replacing any timer already pending.
func (w *Watcher) debounce(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		fn()
	})
}

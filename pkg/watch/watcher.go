// Package watch re-runs work when raw log inputs change on disk.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rpaflow/rpaflow/pkg/errors"
)

// DefaultDebounce coalesces bursts of writes to one change.
const DefaultDebounce = 500 * time.Millisecond

// Handler is called with the watched path (a file, or a CSV directory)
// after it changed.
type Handler func(ctx context.Context, path string) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a change is reported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watcher monitors log files and log directories.
type Watcher struct {
	fs       *fsnotify.Watcher
	targets  map[string]*target
	mu       sync.Mutex
	debounce time.Duration
	logger   *slog.Logger
	onChange Handler
}

// target is a watched path and the fingerprint it had when last handled.
type target struct {
	path       string
	dir        bool
	modTime    time.Time
	size       int64
	processing bool
}

// New creates a watcher that calls onChange for every settled change.
func New(onChange Handler, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "creating file watcher")
	}
	w := &Watcher{
		fs:       fsw,
		targets:  make(map[string]*target),
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch adds a file or a directory. Files are watched through their parent
// directory.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidArgument, "resolving path").WithContext("path", path)
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return errors.FileNotFound(abs)
	}

	t := &target{path: abs, dir: stat.IsDir()}
	t.modTime, t.size, err = fingerprint(abs, t.dir)
	if err != nil {
		return err
	}

	dir := abs
	if !t.dir {
		dir = filepath.Dir(abs)
	}
	if err := w.fs.Add(dir); err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "watching directory").WithContext("path", dir)
	}

	w.mu.Lock()
	w.targets[abs] = t
	w.mu.Unlock()
	w.logger.Debug("watching", "path", abs, "dir", t.dir)
	return nil
}

// Run dispatches changes until ctx is done. It blocks.
func (w *Watcher) Run(ctx context.Context) error {
	timers := make(map[string]*time.Timer)
	var timerMu sync.Mutex
	defer func() {
		timerMu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		timerMu.Unlock()
		w.fs.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			t := w.resolve(event.Name)
			if t == nil {
				continue
			}

			timerMu.Lock()
			if timer, exists := timers[t.path]; exists {
				timer.Stop()
			}
			timers[t.path] = time.AfterFunc(w.debounce, func() {
				w.handleChange(ctx, t)
			})
			timerMu.Unlock()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// resolve maps an fsnotify event name to the watched target it affects.
func (w *Watcher) resolve(name string) *target {
	abs, err := filepath.Abs(name)
	if err != nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.targets[abs]; ok && !t.dir {
		return t
	}
	if t, ok := w.targets[filepath.Dir(abs)]; ok && t.dir {
		return t
	}
	return nil
}

func (w *Watcher) handleChange(ctx context.Context, t *target) {
	w.mu.Lock()
	if t.processing {
		w.mu.Unlock()
		return
	}
	t.processing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		t.processing = false
		w.mu.Unlock()
	}()

	modTime, size, err := fingerprint(t.path, t.dir)
	if err != nil {
		w.logger.Warn("watched path unavailable", "path", t.path, "error", err)
		return
	}

	w.mu.Lock()
	unchanged := modTime.Equal(t.modTime) && size == t.size
	t.modTime, t.size = modTime, size
	w.mu.Unlock()
	if unchanged {
		return
	}

	w.logger.Info("input changed", "path", t.path)
	if err := w.onChange(ctx, t.path); err != nil {
		w.logger.Error("handling change failed", "path", t.path, "error", err)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// fingerprint returns the latest modification time and total size of a file,
// or of the regular files directly inside a directory.
func fingerprint(path string, dir bool) (time.Time, int64, error) {
	if !dir {
		stat, err := os.Stat(path)
		if err != nil {
			return time.Time{}, 0, errors.FileNotFound(path)
		}
		return stat.ModTime(), stat.Size(), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return time.Time{}, 0, errors.FileNotFound(path)
	}
	var (
		latest time.Time
		total  int64
	)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		// Count entries too so a rename or delete with equal sizes is seen.
		total += info.Size() + 1
	}
	return latest, total, nil
}

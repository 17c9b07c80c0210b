package biz

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"TaskSync/internal/conf"
	syncerrors "TaskSync/pkg/errors"
	pkglog "TaskSync/pkg/log"

	"github.com/fsnotify/fsnotify"
	"github.com/go-kratos/kratos/v2/log"
)

// ChangeWatcher observes a single tracked file and emits one coalesced
// change notification per quiet period. The parent directory is watched
// rather than the file itself so the watch survives editors and CLIs that
// replace the file (delete+recreate, rename-over).
type ChangeWatcher struct {
	debounce time.Duration
	logger   *pkglog.LogHelper

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	path    string
	active  bool
	done    chan struct{}
}

// NewChangeWatcher creates a watcher with the given debounce quiet period.
func NewChangeWatcher(debounce time.Duration, logger log.Logger) *ChangeWatcher {
	return &ChangeWatcher{
		debounce: debounce,
		logger:   pkglog.NewLogHelper(logger),
	}
}

// NewWatcherFromConf builds a ChangeWatcher from bootstrap config.
func NewWatcherFromConf(bc *conf.Bootstrap, logger log.Logger) *ChangeWatcher {
	return NewChangeWatcher(bc.Watch.Debounce.AsDuration(), logger)
}

// Start begins observing path and invokes handler once per quiet period
// after qualifying events. The tracked file must exist at start time;
// otherwise a WatchSetupError is returned and nothing is watched.
func (w *ChangeWatcher) Start(path string, handler func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		return &syncerrors.WatchSetupError{Path: path, OriginalErr: err}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return &syncerrors.WatchSetupError{Path: path, OriginalErr: err}
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return &syncerrors.WatchSetupError{Path: path, OriginalErr: err}
	}

	w.watcher = fsw
	w.path = path
	w.active = true
	w.done = make(chan struct{})

	// The loop gets its own copies of the tracked name and handler: an old
	// loop goroutine still draining events after a stop/restart must never
	// read fields a new Start rewrites.
	go w.loop(fsw, w.done, filepath.Base(path), handler)

	w.logger.Infow("msg", "file watcher started",
		"path", path,
		"debounce", w.debounce.String())

	return nil
}

// loop consumes fsnotify events until the watcher is stopped.
func (w *ChangeWatcher) loop(fsw *fsnotify.Watcher, done chan struct{}, base string, handler func()) {
	for {
		select {
		case <-done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event, base, handler)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("msg", "file watcher error", "error", err.Error())
		}
	}
}

// handleEvent filters directory events down to the tracked filename and
// resets the debounce timer on qualifying ones. A rename or remove of the
// tracked name still qualifies: it usually means "file replaced" and the
// follow-up create/write lands within the same quiet period.
func (w *ChangeWatcher) handleEvent(event fsnotify.Event, base string, handler func()) {
	if filepath.Base(event.Name) != base {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	w.logger.Watcher("file change detected",
		"path", event.Name,
		"op", event.Op.String())

	w.resetTimer(handler)
}

// resetTimer (re)arms the debounce timer, coalescing event bursts into a
// single notification debounce after the last event.
func (w *ChangeWatcher) resetTimer(handler func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		// Only fire if the watcher is still active; Stop may have raced
		// with the timer.
		w.mu.Lock()
		active := w.active
		w.mu.Unlock()

		if active {
			handler()
		}
	})
}

// Stop cancels any pending debounce timer and releases the watch handles.
// Idempotent; safe to call on a watcher that never started.
func (w *ChangeWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return
	}

	w.active = false

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}

	close(w.done)

	if w.watcher != nil {
		_ = w.watcher.Close()
		w.watcher = nil
	}

	w.logger.Infow("msg", "file watcher stopped", "path", w.path)
}

// Active reports whether the watcher currently holds a watch.
func (w *ChangeWatcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Debounce returns the configured quiet period.
func (w *ChangeWatcher) Debounce() time.Duration {
	return w.debounce
}

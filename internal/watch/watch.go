// Package watch turns filesystem change notifications for a fixed set of
// files into debounced, coalesced callbacks.
//
// Directories are watched rather than files so that atomic replaces and
// files created after startup are seen. Each registered file has one worker
// goroutine; notifications that arrive while its callback runs collapse into a
// single follow-up call.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/angel-control/angelmon/internal/clock"
)

// ErrAlreadyStarted is returned by Start on a running watcher.
var ErrAlreadyStarted = errors.New("watch: already started")

type target struct {
	path  string
	fn    func()
	kick  chan struct{}
	timer *clock.Timer
}

// Watcher dispatches change callbacks for registered files.
type Watcher struct {
	debounce time.Duration
	retry    time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	targets map[string]*target
	dirs    map[string]bool // directory -> currently watched
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a watcher. debounce is the quiet period after the last change
// before a callback runs; retry is how often missing directories are retried.
func New(debounce, retry time.Duration, clk clock.Clock, logger *slog.Logger) *Watcher {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		debounce: debounce,
		retry:    retry,
		clock:    clk,
		logger:   logger,
		targets:  make(map[string]*target),
		dirs:     make(map[string]bool),
	}
}

// Register arranges for fn to run after path changes. Register before Start;
// registering a path twice replaces its callback.
func (w *Watcher) Register(path string, fn func()) {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.targets[path]; ok {
		t.fn = fn
		return
	}
	w.targets[path] = &target{path: path, fn: fn, kick: make(chan struct{}, 1)}
	w.dirs[filepath.Dir(path)] = false
}

// Start opens the fsnotify watcher and starts the event loop, the directory
// retry loop and one worker per registered file.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrAlreadyStarted
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel

	for dir := range w.dirs {
		w.addDirLocked(dir)
	}

	for _, t := range w.targets {
		w.wg.Add(1)
		go w.worker(ctx, t)
	}
	w.wg.Add(2)
	go w.eventLoop(ctx, fsw)
	go w.retryLoop(ctx)
	return nil
}

// Stop closes the fsnotify watcher, cancels pending debounce timers and
// waits for all goroutines. The watcher can be started again afterwards.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, fsw := w.cancel, w.fsw
	w.cancel, w.fsw = nil, nil
	for _, t := range w.targets {
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		select {
		case <-t.kick:
		default:
		}
	}
	for dir := range w.dirs {
		w.dirs[dir] = false
	}
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if err := fsw.Close(); err != nil {
		w.logger.Debug("closing fsnotify watcher", "error", err)
	}
	w.wg.Wait()
}

// Notify schedules the callback for path as if a change had been observed.
// Unknown paths are ignored.
func (w *Watcher) Notify(path string) {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()

	t, ok := w.targets[path]
	if !ok {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = w.clock.AfterFunc(w.debounce, func() {
		select {
		case t.kick <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) worker(ctx context.Context, t *target) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.kick:
			w.mu.Lock()
			fn := t.fn
			w.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	}
}

func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.mu.Lock()
		if watched, ok := w.dirs[name]; ok && watched {
			w.dirs[name] = false
			w.logger.Info("watched directory removed", "dir", name)
		}
		w.mu.Unlock()
	}
	w.Notify(name)
}

// retryLoop re-adds directories that were missing or removed.
func (w *Watcher) retryLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := w.clock.NewTicker(w.retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			var added []string
			for dir, watched := range w.dirs {
				if !watched && w.addDirLocked(dir) {
					added = append(added, dir)
				}
			}
			var pending []string
			for path := range w.targets {
				for _, dir := range added {
					if filepath.Dir(path) == dir {
						pending = append(pending, path)
					}
				}
			}
			w.mu.Unlock()

			for _, path := range pending {
				w.Notify(path)
			}
		}
	}
}

// addDirLocked adds dir to the fsnotify watch list. Caller holds w.mu.
func (w *Watcher) addDirLocked(dir string) bool {
	if w.fsw == nil {
		return false
	}
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Debug("watch directory unavailable", "dir", dir, "error", err)
		w.dirs[dir] = false
		return false
	}
	w.dirs[dir] = true
	return true
}

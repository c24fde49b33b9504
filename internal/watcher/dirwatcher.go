package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher reports file changes directly inside one directory.
// Subdirectories are not watched.
type DirWatcher struct {
	dir       string
	opts      Options
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}

	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// NewDirWatcher creates a watcher for dir. fsnotify is used unless it cannot
// be initialised or opts.ForcePolling is set.
func NewDirWatcher(dir string, opts Options) (*DirWatcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	opts = opts.WithDefaults()

	w := &DirWatcher{
		dir:       abs,
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 8),
		stopCh:    make(chan struct{}),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("fsnotify_unavailable_polling",
				slog.String("dir", abs),
				slog.String("error", err.Error()))
		} else {
			w.fsWatcher = fsw
		}
	}
	return w, nil
}

// Run watches until ctx is cancelled or Stop is called. Batches are delivered
// on Events; the channels are closed when Run returns.
func (w *DirWatcher) Run(ctx context.Context) error {
	defer func() { _ = w.Stop() }()

	go w.forward()

	if w.fsWatcher != nil {
		err := w.fsWatcher.Add(w.dir)
		if err == nil {
			return w.runFsnotify(ctx)
		}
		slog.Warn("fsnotify_add_failed_polling",
			slog.String("dir", w.dir),
			slog.String("error", err.Error()))
		w.mu.Lock()
		_ = w.fsWatcher.Close()
		w.fsWatcher = nil
		w.mu.Unlock()
	}
	return newPoller(w.dir, w.opts.PollInterval).run(ctx, w.stopCh, w.add, w.emitError)
}

func (w *DirWatcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *DirWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	if filepath.Dir(event.Name) != w.dir {
		return
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	if op == OpCreate || op == OpModify {
		info, err := os.Stat(event.Name)
		if err != nil || !info.Mode().IsRegular() {
			return
		}
	}
	w.add(FileEvent{Name: filepath.Base(event.Name), Operation: op, Timestamp: time.Now()})
}

func (w *DirWatcher) add(ev FileEvent) {
	if Ignored(ev.Name) {
		return
	}
	w.debouncer.Add(ev)
}

// Ignored reports whether a file name is skipped: hidden files and the
// temporary names editors and downloaders write before the final rename.
func Ignored(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tmp", ".part", ".partial", ".crdownload", ".swp":
		return true
	}
	return false
}

func (w *DirWatcher) forward() {
	for batch := range w.debouncer.Output() {
		w.mu.RLock()
		if w.stopped {
			w.mu.RUnlock()
			return
		}
		select {
		case w.events <- batch:
		default:
			n := w.droppedBatches.Add(1)
			slog.Warn("inbox_event_buffer_full",
				slog.Int("batch_size", len(batch)),
				slog.Uint64("total_dropped_batches", n))
		}
		w.mu.RUnlock()
	}
}

func (w *DirWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop releases the watcher. Safe to call more than once.
func (w *DirWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced batches.
func (w *DirWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *DirWatcher) Errors() <-chan error {
	return w.errors
}

// Dir is the watched directory.
func (w *DirWatcher) Dir() string {
	return w.dir
}

// WatcherType returns "fsnotify" or "polling".
func (w *DirWatcher) WatcherType() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// DroppedBatches is the number of batches dropped because the consumer fell behind.
func (w *DirWatcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}

package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/docchat/internal/chat"
	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/extract"
	"github.com/Aman-CERP/docchat/internal/metrics"
)

// Subdirectories of the inbox that receive handled files.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Ingester indexes one file.
type Ingester interface {
	Ingest(ctx context.Context, name string, data []byte) (*chat.IngestResult, error)
}

// InboxOptions configures an Inbox.
type InboxOptions struct {
	Dir          string
	Debounce     time.Duration
	PollInterval time.Duration
	ForcePolling bool
}

// Inbox ingests files dropped into a directory.
type Inbox struct {
	ingester Ingester
	metrics  *metrics.Metrics
	opts     InboxOptions
	now      func() time.Time
}

// NewInbox creates an inbox; m may be nil.
func NewInbox(ing Ingester, m *metrics.Metrics, opts InboxOptions) *Inbox {
	return &Inbox{ingester: ing, metrics: m, opts: opts, now: time.Now}
}

// Dir is the watched directory.
func (in *Inbox) Dir() string {
	return in.opts.Dir
}

// Prepare creates the inbox and its processed/ and failed/ subdirectories.
func (in *Inbox) Prepare() error {
	for _, dir := range []string{in.opts.Dir, filepath.Join(in.opts.Dir, ProcessedDir), filepath.Join(in.opts.Dir, FailedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return dcerrors.IOError(fmt.Sprintf("failed to create inbox directory %s", dir), err)
		}
	}
	return nil
}

// Run ingests files already waiting in the inbox, then every file that
// arrives until ctx is cancelled.
func (in *Inbox) Run(ctx context.Context) error {
	if err := in.Prepare(); err != nil {
		return err
	}

	w, err := NewDirWatcher(in.opts.Dir, Options{
		DebounceWindow: in.opts.Debounce,
		PollInterval:   in.opts.PollInterval,
		ForcePolling:   in.opts.ForcePolling,
	})
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	slog.Info("inbox_started",
		slog.String("dir", w.Dir()),
		slog.String("watcher", w.WatcherType()))

	if _, err := in.ProcessPending(ctx); err != nil {
		slog.Warn("inbox_scan_failed", slog.String("error", err.Error()))
	}

	events, errs := w.Events(), w.Errors()
	for {
		select {
		case batch, ok := <-events:
			if !ok {
				err := <-done
				slog.Info("inbox_stopped")
				return err
			}
			for _, ev := range batch {
				if ev.Operation == OpCreate || ev.Operation == OpModify {
					in.process(ctx, ev.Name)
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("inbox_watch_error", slog.String("error", err.Error()))
		}
	}
}

// ProcessPending handles every file currently in the inbox, oldest name first.
// It returns the number of files handled.
func (in *Inbox) ProcessPending(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(in.opts.Dir)
	if err != nil {
		return 0, dcerrors.IOError("failed to list inbox", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !Ignored(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	handled := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}
		if in.process(ctx, name) != "" {
			handled++
		}
	}
	return handled, nil
}

// process ingests one file and moves it out of the inbox. It returns the
// outcome label, or "" when the file was not handled.
func (in *Inbox) process(ctx context.Context, name string) string {
	path := filepath.Join(in.opts.Dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}

	var result *chat.IngestResult
	if !extract.Supported(name) {
		err = dcerrors.New(dcerrors.ErrCodeUnsupportedType, "unsupported file type", nil).
			WithDetail("file", name)
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			err = dcerrors.IOError("failed to read inbox file", err)
		} else {
			result, err = in.ingester.Ingest(ctx, name, data)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ""
		}
		attrs := append([]slog.Attr{slog.String("file", name)}, dcerrors.LogAttrs(err)...)
		slog.LogAttrs(ctx, slog.LevelWarn, "inbox_file_failed", attrs...)
		in.metrics.RecordInboxFile(metrics.OutcomeError)
		in.move(path, FailedDir)
		return metrics.OutcomeError
	}

	slog.Info("inbox_file_ingested",
		slog.String("file", name),
		slog.Int("chunks", result.Chunks))
	in.metrics.RecordInboxFile(metrics.OutcomeOK)
	in.move(path, ProcessedDir)
	return metrics.OutcomeOK
}

// move renames path into subdir, adding a timestamp when the name is taken.
func (in *Inbox) move(path, subdir string) {
	name := filepath.Base(path)
	dest := filepath.Join(in.opts.Dir, subdir, name)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		dest = filepath.Join(in.opts.Dir, subdir, fmt.Sprintf("%s-%s%s", stem, in.now().UTC().Format("20060102T150405.000000000"), ext))
	}
	if err := os.Rename(path, dest); err != nil {
		slog.Warn("inbox_move_failed",
			slog.String("file", name),
			slog.String("dest", dest),
			slog.String("error", err.Error()))
	}
}

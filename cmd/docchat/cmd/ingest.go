package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docchat/internal/chat"
	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/output"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload documents from the command line",
		Long: `Ingest .txt and .pdf files exactly as POST /api/upload does: each file is
stored, extracted, chunked, embedded and added to the index.

ingest needs the index write lock, so it cannot run while 'docchat serve'
is running. Use the HTTP API or the inbox directory instead.`,
		Example: `  docchat ingest handbook.pdf notes.txt`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return runIngest(ctx, a.svc, output.New(cmd.OutOrStdout()), args)
		},
	}
	return cmd
}

// ingester is the part of the chat service ingest uses.
type ingester interface {
	Ingest(ctx context.Context, name string, data []byte) (*chat.IngestResult, error)
}

func runIngest(ctx context.Context, svc ingester, out *output.Writer, paths []string) error {
	var failed, chunks int
	for i, path := range paths {
		name := filepath.Base(path)
		out.Progress(i, len(paths), name)

		var res *chat.IngestResult
		data, err := readInput(path)
		if err == nil {
			res, err = svc.Ingest(ctx, name, data)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			attrs := append([]slog.Attr{slog.String("path", path)}, dcerrors.LogAttrs(err)...)
			slog.LogAttrs(ctx, slog.LevelWarn, "ingest_failed", attrs...)
			out.Errorf("%s: %s", path, ingestErrorMessage(err))
			continue
		}
		chunks += res.Chunks
		out.Progress(i+1, len(paths), fmt.Sprintf("%s (%d chunks)", res.FileName, res.Chunks))
	}

	ok := len(paths) - failed
	if failed > 0 {
		out.Warningf("ingested %d of %d files (%d chunks)", ok, len(paths), chunks)
		return fmt.Errorf("%d file(s) failed to ingest", failed)
	}
	out.Successf("ingested %d file(s) (%d chunks)", ok, chunks)
	return nil
}

func readInput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, dcerrors.New(dcerrors.ErrCodeFileNotFound, "file not found", err).
			WithDetail("path", path)
	default:
		return nil, dcerrors.IOError("failed to read file", err)
	}
}

func ingestErrorMessage(err error) string {
	if de, ok := dcerrors.As(err); ok {
		return de.Message
	}
	return err.Error()
}

package cmd

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docchat/internal/config"
	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/index"
	"github.com/Aman-CERP/docchat/internal/store"
	"github.com/Aman-CERP/docchat/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		check      bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show document, index and history counts",
		Long: `Show what docchat has stored: uploaded files, chunks, indexed vectors and
chat messages, plus the embedding model and the live index generation.

With --check, every index slot is compared with the stored chunks. Slots
that disagree are skipped at retrieval; the check reports how many there are.

status reads alongside a running 'docchat serve' and never loads the
embedding model.`,
		Example: `  docchat status
  docchat status --check
  docchat status --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			info, err := collectStatus(cmd.Context(), cfg, check)
			if err != nil {
				return err
			}

			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
			if jsonOutput {
				return renderer.RenderJSON(*info)
			}
			return renderer.Render(*info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&check, "check", false, "Verify index slots against stored chunks")

	return cmd
}

func collectStatus(ctx context.Context, cfg *config.Config, check bool) (*ui.StatusInfo, error) {
	docs, err := openDocs(cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = docs.Close() }()

	stats, err := docs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	files, err := docs.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	info := &ui.StatusInfo{
		DataDir:         cfg.DataDir,
		Files:           stats.Files,
		Chunks:          stats.Chunks,
		Messages:        stats.Messages,
		Model:           cfg.Embeddings.Model,
		Dimensions:      cfg.Embeddings.Dimensions,
		Backend:         cfg.Index.Backend,
		DatabaseSize:    databaseSize(cfg.ResolvePath(databaseName)),
		CompletionModel: cfg.Completion.Model,
		CompletionReady: cfg.Completion.APIKey != "",
	}
	for _, f := range files {
		if f.LastIngested.After(info.LastIngested) {
			info.LastIngested = f.LastIngested
		}
	}

	indexDir := cfg.ResolvePath(indexDirName)
	info.IndexSize = dirSize(indexDir)
	m, committed, err := index.ReadLive(indexDir)
	if err != nil {
		return nil, dcerrors.New(dcerrors.ErrCodeCorruptIndex, "failed to read index", err)
	}
	if committed {
		info.Model = m.Model
		info.Dimensions = m.Dimensions
		info.Backend = string(m.Backend)
		info.Generation = m.Generation
		info.Vectors = m.Count
	}

	if !check {
		return info, nil
	}

	corpus, err := index.Open(index.Options{
		Dir:        indexDir,
		Model:      info.Model,
		Dimensions: info.Dimensions,
		Backend:    store.Backend(info.Backend),
		ReadOnly:   true,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = corpus.Close() }()

	result, err := index.NewConsistencyChecker(corpus, docs).Check(ctx)
	if err != nil {
		return nil, err
	}
	info.Check = &ui.CheckSummary{
		Checked:  result.Checked,
		Problems: result.Counts(),
		Duration: result.Duration,
	}
	return info, nil
}

// databaseSize sums the database file and its WAL sidecars.
func databaseSize(path string) int64 {
	var total int64
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if st, err := os.Stat(p); err == nil {
			total += st.Size()
		}
	}
	return total
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

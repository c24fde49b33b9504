//go:build cgo

package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"

	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/lockfile"
)

// FastEmbedBuilt reports whether this binary can run local fastembed models.
const FastEmbedBuilt = true

// fastEmbedModels maps accepted model names to fastembed models.
var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"all-MiniLM-L6-v2":                       fastembed.AllMiniLML6V2,
	"fast-all-MiniLM-L6-v2":                  fastembed.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
}

// fastEmbedDimensions maps fastembed models to their output dimension.
var fastEmbedDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.AllMiniLML6V2: 384,
	fastembed.BGESmallENV15: 384,
	fastembed.BGEBaseENV15:  768,
}

// FastEmbedder runs a sentence-embedding model locally through ONNX Runtime.
type FastEmbedder struct {
	model     *fastembed.FlagEmbedding
	modelName string
	dims      int
	batchSize int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*FastEmbedder)(nil)

// NewFastEmbedder loads (downloading on first use) the configured model into
// cfg.CacheDir. Concurrent first runs serialize on a lock file in that directory.
func NewFastEmbedder(ctx context.Context, cfg FastEmbedConfig) (*FastEmbedder, error) {
	model, ok := fastEmbedModels[cfg.Model]
	if !ok {
		return nil, dcerrors.New(dcerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unsupported fastembed model %q", cfg.Model), nil).
			WithSuggestion("Use sentence-transformers/all-MiniLM-L6-v2 or switch embeddings.provider")
	}
	dims := fastEmbedDimensions[model]
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model cache dir: %w", err)
	}

	lock := lockfile.New(filepath.Join(cfg.CacheDir, ".download.lock"))
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	showProgress := false
	var flag *fastembed.FlagEmbedding
	err := dcerrors.Retry(ctx, dcerrors.DefaultRetryConfig(), func() error {
		var err error
		flag, err = fastembed.NewFlagEmbedding(&fastembed.InitOptions{
			Model:                model,
			CacheDir:             cfg.CacheDir,
			MaxLength:            512,
			ShowDownloadProgress: &showProgress,
		})
		return err
	})
	if err != nil {
		return nil, dcerrors.New(dcerrors.ErrCodeModelDownload,
			fmt.Sprintf("failed to load embedding model %s", cfg.Model), err).
			WithSuggestion("Check network access, or set embeddings.provider: static")
	}

	slog.Debug("embedding_model_loaded",
		slog.String("model", cfg.Model),
		slog.Int("dimensions", dims),
		slog.String("cache_dir", cfg.CacheDir))

	return &FastEmbedder{
		model:     flag,
		modelName: cfg.Model,
		dims:      dims,
		batchSize: cfg.BatchSize,
	}, nil
}

// Embed generates embedding for a single text
func (e *FastEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts without query or passage prefixes.
func (e *FastEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	vecs, err := e.model.Embed(texts, e.batchSize)
	if err != nil {
		return nil, dcerrors.New(dcerrors.ErrCodeEmbeddingFailed, "fastembed embedding failed", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("fastembed returned %d embeddings for %d inputs", len(vecs), len(texts))
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension
func (e *FastEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier
func (e *FastEmbedder) ModelName() string {
	return e.modelName
}

// Available reports whether the model is loaded.
func (e *FastEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases the ONNX session.
func (e *FastEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.model.Destroy()
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/docchat/internal/chat"
	"github.com/Aman-CERP/docchat/internal/chunk"
	"github.com/Aman-CERP/docchat/internal/completion"
	"github.com/Aman-CERP/docchat/internal/config"
	"github.com/Aman-CERP/docchat/internal/embed"
	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/index"
	"github.com/Aman-CERP/docchat/internal/metrics"
	"github.com/Aman-CERP/docchat/internal/store"
)

// Files and directories under the data directory.
const (
	indexDirName   = "index"
	databaseName   = "docchat.db"
	uploadsDirName = "uploads"
	modelsDirName  = "models"
)

// loadConfig loads configuration for workDir and anchors a relative data
// directory there.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(workDir, cfg.DataDir)
	}
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	return cfg, nil
}

func modelCacheDir(cfg *config.Config) string {
	if cfg.Embeddings.CacheDir != "" {
		return cfg.Embeddings.CacheDir
	}
	return cfg.ResolvePath(modelsDirName)
}

// app holds the opened stores and the chat service for one command.
type app struct {
	cfg      *config.Config
	docs     *store.DocumentStore
	corpus   *index.Corpus
	embedder embed.Embedder
	metrics  *metrics.Metrics
	svc      *chat.Service
}

// openApp opens every component. Only the writer (serve, ingest) takes the
// index lock; readers follow the writer's generations.
func openApp(ctx context.Context, cfg *config.Config, readOnly bool) (a *app, err error) {
	a = &app{cfg: cfg, metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	chunker, err := chunk.NewWordChunker(chunk.Options{Size: cfg.Chunking.Size, Overlap: cfg.Chunking.Overlap})
	if err != nil {
		return nil, dcerrors.New(dcerrors.ErrCodeChunkingFailed, "invalid chunking options", err).
			WithSuggestion("Set chunking.overlap below chunking.size in .docchat.yaml")
	}

	a.embedder, err = embed.New(ctx, embed.Config{
		Provider:       embed.ProviderType(cfg.Embeddings.Provider),
		Model:          cfg.Embeddings.Model,
		Dimensions:     cfg.Embeddings.Dimensions,
		CacheDir:       modelCacheDir(cfg),
		OllamaHost:     cfg.Embeddings.OllamaHost,
		BatchSize:      cfg.Embeddings.BatchSize,
		CacheSize:      cfg.Embeddings.CacheSize,
		FallbackStatic: cfg.Embeddings.FallbackStatic,
	})
	if err != nil {
		return nil, err
	}

	a.corpus, err = index.Open(index.Options{
		Dir:          cfg.ResolvePath(indexDirName),
		Model:        a.embedder.ModelName(),
		Dimensions:   a.embedder.Dimensions(),
		Backend:      store.Backend(cfg.Index.Backend),
		HNSWM:        cfg.Index.HNSWM,
		HNSWEfSearch: cfg.Index.HNSWEfSearch,
		ReadOnly:     readOnly,
	})
	if err != nil {
		return nil, err
	}
	a.metrics.SetIndexedVectors(a.corpus.Size())

	a.docs, err = store.OpenDocumentStore(cfg.ResolvePath(databaseName))
	if err != nil {
		return nil, err
	}

	if cfg.Completion.APIKey == "" {
		slog.Warn("completion_api_key_missing",
			slog.String("hint", "set OPENAI_API_KEY; chat replies will be LLM errors until then"))
	}
	completer := completion.NewOpenAIClient(completion.Config{
		BaseURL:           cfg.Completion.BaseURL,
		Model:             cfg.Completion.Model,
		APIKey:            cfg.Completion.APIKey,
		MaxTokens:         cfg.Completion.MaxTokens,
		Temperature:       cfg.Completion.Temperature,
		Timeout:           cfg.Completion.Timeout,
		MaxRetries:        cfg.Completion.MaxRetries,
		RequestsPerSecond: cfg.Completion.RequestsPerSecond,
	})

	a.svc, err = chat.New(chat.Options{
		Docs:           a.docs,
		Corpus:         a.corpus,
		Embedder:       a.embedder,
		Chunker:        chunker,
		Completer:      completer,
		Metrics:        a.metrics,
		UploadDir:      cfg.ResolvePath(uploadsDirName),
		MaxUploadBytes: cfg.Server.MaxUploadBytes(),
		TopK:           cfg.Retrieval.TopK,
		ContextBudget:  cfg.Retrieval.ContextBudget,
		SystemPrompt:   cfg.Retrieval.SystemPrompt,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("docchat_opened",
		slog.String("data_dir", cfg.DataDir),
		slog.String("model", a.embedder.ModelName()),
		slog.Int("vectors", a.corpus.Size()),
		slog.Bool("read_only", readOnly))
	return a, nil
}

// Close releases the stores in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	if a.docs != nil {
		errs = append(errs, a.docs.Close())
	}
	if a.corpus != nil {
		errs = append(errs, a.corpus.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	return errors.Join(errs...)
}

// openDocs opens only the document store, for commands that never touch
// the index or the embedder.
func openDocs(cfg *config.Config) (*store.DocumentStore, error) {
	docs, err := store.OpenDocumentStore(cfg.ResolvePath(databaseName))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", databaseName, err)
	}
	return docs, nil
}

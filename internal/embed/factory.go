package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderFastEmbed runs all-MiniLM-L6-v2 locally (default)
	ProviderFastEmbed ProviderType = "fastembed"

	// ProviderOllama uses Ollama's HTTP API
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings
	ProviderStatic ProviderType = "static"
)

// ErrFastEmbedUnavailable is returned by fastembed in binaries built without cgo.
var ErrFastEmbedUnavailable = errors.New("fastembed: not available (binary built without cgo)")

// FastEmbedConfig configures the local ONNX embedder.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	BatchSize int
}

// Config selects and configures a provider.
type Config struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	CacheDir   string
	OllamaHost string
	BatchSize  int
	// CacheSize is the query cache size; negative disables the cache.
	CacheSize int
	// FallbackStatic substitutes the static embedder when the provider fails to start.
	FallbackStatic bool
}

// New creates the configured embedder wrapped in a query cache. When the
// provider cannot start and FallbackStatic is set, a static embedder of the
// configured dimension is used instead and a warning is logged.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	embedder, err := newProvider(ctx, cfg)
	if err != nil {
		if !cfg.FallbackStatic || cfg.Provider == ProviderStatic {
			return nil, err
		}
		slog.Warn("embedder_fallback_static",
			slog.String("provider", string(cfg.Provider)),
			slog.Int("dimensions", cfg.Dimensions),
			slog.String("error", err.Error()))
		embedder = NewStaticEmbedder(cfg.Dimensions)
	}

	if cfg.CacheSize < 0 {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, cfg.CacheSize), nil
}

func newProvider(ctx context.Context, cfg Config) (Embedder, error) {
	switch ProviderType(strings.ToLower(string(cfg.Provider))) {
	case ProviderFastEmbed, "":
		e, err := NewFastEmbedder(ctx, FastEmbedConfig{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			BatchSize: cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		return e, nil

	case ProviderOllama:
		model := cfg.Model
		// HuggingFace-style names are not Ollama tags
		if model == "" || strings.Contains(model, "/") {
			model = DefaultOllamaModel
		}
		e, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		return e, nil

	case ProviderStatic:
		return NewStaticEmbedder(cfg.Dimensions), nil

	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}

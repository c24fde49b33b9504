// Package embed maps text to fixed-dimension dense vectors.
//
// Providers: fastembed (local ONNX all-MiniLM-L6-v2, cgo builds only), Ollama's
// HTTP API, and a deterministic hash-based static embedder used as an offline
// fallback. New wires the configured provider and wraps it in a query cache.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

// Common embedding constants
const (
	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultDimensions is the output dimension of all-MiniLM-L6-v2
	DefaultDimensions = 384

	// DefaultModel is the default sentence-embedding model
	DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

	// DefaultTimeout bounds one embedding request to a remote provider
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of attempts for remote providers
	DefaultMaxRetries = 3
)

// ErrClosed is returned by an embedder after Close.
var ErrClosed = errors.New("embedder is closed")

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per text, preserving order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

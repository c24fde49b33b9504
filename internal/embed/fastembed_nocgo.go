//go:build !cgo

package embed

import (
	"context"
)

// FastEmbedBuilt reports whether this binary can run local fastembed models.
const FastEmbedBuilt = false

// FastEmbedder is unavailable in binaries built without cgo.
type FastEmbedder struct{}

// NewFastEmbedder returns ErrFastEmbedUnavailable.
func NewFastEmbedder(_ context.Context, _ FastEmbedConfig) (*FastEmbedder, error) {
	return nil, ErrFastEmbedUnavailable
}

func (e *FastEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (e *FastEmbedder) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (e *FastEmbedder) Dimensions() int { return 0 }

func (e *FastEmbedder) ModelName() string { return "" }

func (e *FastEmbedder) Available(_ context.Context) bool { return false }

func (e *FastEmbedder) Close() error { return nil }

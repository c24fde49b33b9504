// Package store holds docchat's three persistence layers: the vector index
// (slot-addressed embeddings with exact or HNSW search), the slot map from
// vector slots to chunk provenance, and the SQLite document store of chunk
// text and chat messages.
//
// The vector index and slot map are not synchronized; the corpus in
// internal/index owns them and serializes access.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend names a VectorIndex implementation.
type Backend string

const (
	// BackendFlat is exact brute-force search.
	BackendFlat Backend = "flat"
	// BackendHNSW is an approximate graph index over the same vectors.
	BackendHNSW Backend = "hnsw"
)

// Hit is one search result.
type Hit struct {
	Slot     int
	Distance float32 // squared Euclidean distance
}

// VectorIndex is an append-only set of equal-length vectors addressed by
// insertion order (slot).
type VectorIndex interface {
	// Add appends vectors in order and returns the slot of the first one.
	Add(ctx context.Context, vectors [][]float32) (int, error)

	// Search returns up to k hits ordered by distance, then slot.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Size returns the number of vectors.
	Size() int

	// Dimensions returns the vector length.
	Dimensions() int

	// Truncate drops every slot >= n.
	Truncate(n int) error

	// Save writes the index to path atomically.
	Save(path string) error

	// Load replaces the index contents with the file at path.
	Load(path string) error

	// Backend names the implementation.
	Backend() Backend
}

// VectorIndexConfig configures NewVectorIndex.
type VectorIndexConfig struct {
	Backend    Backend
	Dimensions int
	// HNSW parameters (ignored by the flat backend)
	M        int
	EfSearch int
}

// NewVectorIndex creates an empty index of the configured backend.
func NewVectorIndex(cfg VectorIndexConfig) (VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	switch cfg.Backend {
	case BackendFlat, "":
		return NewFlatIndex(cfg.Dimensions), nil
	case BackendHNSW:
		return NewHNSWIndex(cfg.Dimensions, cfg.M, cfg.EfSearch), nil
	default:
		return nil, fmt.Errorf("unknown vector index backend %q", cfg.Backend)
	}
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ErrNotFound is returned by lookups of missing rows.
var ErrNotFound = errors.New("not found")

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Chunk is one stored window of document text.
type Chunk struct {
	ID        int64
	FileName  string
	Text      string
	CreatedAt time.Time
}

// Message is one stored chat message.
type Message struct {
	ID        int64     `json:"-"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// FileInfo summarises the chunks stored for one uploaded file.
type FileInfo struct {
	FileName      string    `json:"file_name"`
	Chunks        int       `json:"chunks"`
	FirstIngested time.Time `json:"first_ingested"`
	LastIngested  time.Time `json:"last_ingested"`
}

// Stats counts document store rows.
type Stats struct {
	Files    int `json:"files"`
	Chunks   int `json:"chunks"`
	Messages int `json:"messages"`
}

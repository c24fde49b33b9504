// Package retrieval turns a chat query into grounding passages and assembles
// the system prompt that carries them.
package retrieval

import (
	"context"
	"errors"
	"log/slog"

	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/store"
)

// DefaultTopK is the number of nearest slots searched per query.
const DefaultTopK = 5

// Embedder embeds a single query.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the searchable corpus.
type Index interface {
	Size() int
	Search(ctx context.Context, query []float32, k int) ([]store.Hit, error)
	Resolve(slot int) (store.ChunkRef, bool)
}

// ChunkFetcher loads chunk text by id. Missing rows return store.ErrNotFound.
type ChunkFetcher interface {
	GetChunk(ctx context.Context, id int64) (*store.Chunk, error)
}

// Passage is one retrieved chunk.
type Passage struct {
	Slot     int     `json:"slot"`
	FileName string  `json:"file_name"`
	Text     string  `json:"text"`
	Distance float32 `json:"distance"`
}

// DriftReason says why a search hit could not be turned into a passage.
type DriftReason string

const (
	// DriftNoMetadata: the slot has no slot record.
	DriftNoMetadata DriftReason = "no_metadata"
	// DriftNoChunk: the slot record points at a chunk row that does not exist.
	DriftNoChunk DriftReason = "no_chunk"
	// DriftChunkLookupFailed: the document store returned an error.
	DriftChunkLookupFailed DriftReason = "chunk_lookup_failed"
	// DriftFileMismatch: the chunk row belongs to a different file than the
	// slot record, so its text was not embedded into this slot.
	DriftFileMismatch DriftReason = "file_mismatch"
)

// DriftHandler observes hits skipped by the drift rule.
type DriftHandler func(slot int, reason DriftReason)

// LogDrift is the default DriftHandler.
func LogDrift(slot int, reason DriftReason) {
	slog.Debug("retrieval_drift_skipped",
		slog.Int("slot", slot),
		slog.String("reason", string(reason)))
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithDriftHandler replaces LogDrift.
func WithDriftHandler(h DriftHandler) Option {
	return func(r *Retriever) {
		if h != nil {
			r.onDrift = h
		}
	}
}

// Retriever resolves queries against the corpus and the document store.
type Retriever struct {
	embedder Embedder
	index    Index
	chunks   ChunkFetcher
	onDrift  DriftHandler
}

// New creates a Retriever.
func New(embedder Embedder, index Index, chunks ChunkFetcher, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: embedder,
		index:    index,
		chunks:   chunks,
		onDrift:  LogDrift,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to k passages nearest to query, closest first.
// An empty corpus returns no passages without embedding the query.
//
// Drift rule: a hit whose slot record or chunk row cannot be found, or whose
// chunk row names another file than the slot record, is skipped and reported to the DriftHandler; it never fails the call. Only
// embedding and search errors are returned.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if r.index.Size() == 0 {
		return []Passage{}, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, dcerrors.New(dcerrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	hits, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, 0, len(hits))
	for _, hit := range hits {
		ref, ok := r.index.Resolve(hit.Slot)
		if !ok {
			r.onDrift(hit.Slot, DriftNoMetadata)
			continue
		}
		chunk, err := r.chunks.GetChunk(ctx, ref.ChunkID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				r.onDrift(hit.Slot, DriftNoChunk)
			} else {
				slog.Warn("retrieval_chunk_lookup_failed",
					slog.Int("slot", hit.Slot),
					slog.Int64("chunk_id", ref.ChunkID),
					slog.String("error", err.Error()))
				r.onDrift(hit.Slot, DriftChunkLookupFailed)
			}
			continue
		}
		if chunk.FileName != ref.FileName {
			r.onDrift(hit.Slot, DriftFileMismatch)
			continue
		}
		passages = append(passages, Passage{
			Slot:     hit.Slot,
			FileName: chunk.FileName,
			Text:     chunk.Text,
			Distance: hit.Distance,
		})
	}
	return passages, nil
}

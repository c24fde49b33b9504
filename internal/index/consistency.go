package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docchat/internal/store"
)

// InconsistencyType categorizes detected drift.
type InconsistencyType int

const (
	// InconsistencyMissingMetadata is a vector slot with no slot record.
	InconsistencyMissingMetadata InconsistencyType = iota
	// InconsistencyMissingChunk is a slot record pointing at a chunk row that is gone.
	InconsistencyMissingChunk
	// InconsistencyUnindexedChunk is a chunk row no slot refers to.
	InconsistencyUnindexedChunk
	// InconsistencyFileMismatch is a slot record whose chunk row belongs to
	// another file.
	InconsistencyFileMismatch
)

// String returns the snake_case name of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyMissingMetadata:
		return "missing_metadata"
	case InconsistencyMissingChunk:
		return "missing_chunk"
	case InconsistencyUnindexedChunk:
		return "unindexed_chunk"
	case InconsistencyFileMismatch:
		return "file_mismatch"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected disagreement between the corpus and the
// document store. Slot is -1 for unindexed chunks.
type Inconsistency struct {
	Type    InconsistencyType
	Slot    int
	ChunkID int64
	Details string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of slots verified.
	Checked int
	// Inconsistencies contains all detected issues.
	Inconsistencies []Inconsistency
	// Duration is how long the check took.
	Duration time.Duration
}

// Counts tallies inconsistencies by type name.
func (r *CheckResult) Counts() map[string]int {
	counts := make(map[string]int)
	for _, issue := range r.Inconsistencies {
		counts[issue.Type.String()]++
	}
	return counts
}

// ChunkSource is the part of the document store the checker reads.
type ChunkSource interface {
	ChunkRefs(ctx context.Context) ([]store.ChunkRef, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// ConsistencyChecker compares the corpus slot map with stored chunk rows.
// Drift is reported, never repaired: slots are append-only.
type ConsistencyChecker struct {
	corpus *Corpus
	docs   ChunkSource
}

// NewConsistencyChecker creates a checker over corpus and docs.
func NewConsistencyChecker(corpus *Corpus, docs ChunkSource) *ConsistencyChecker {
	return &ConsistencyChecker{corpus: corpus, docs: docs}
}

// Check walks every slot. It is O(slots + chunks).
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	rows, err := c.docs.ChunkRefs(ctx)
	if err != nil {
		return nil, err
	}
	stored := make(map[int64]string, len(rows))
	for _, row := range rows {
		stored[row.ChunkID] = row.FileName
	}

	c.corpus.mu.RLock()
	size := c.corpus.vectors.Size()
	refs := make([]store.ChunkRef, size)
	present := make([]bool, size)
	for slot := range size {
		refs[slot], present[slot] = c.corpus.slots.Resolve(slot)
	}
	c.corpus.mu.RUnlock()

	var issues []Inconsistency
	indexed := make(map[int64]bool, size)
	for slot := range size {
		if !present[slot] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingMetadata,
				Slot:    slot,
				Details: "vector slot has no slot record",
			})
			continue
		}
		ref := refs[slot]
		indexed[ref.ChunkID] = true
		file, ok := stored[ref.ChunkID]
		switch {
		case !ok:
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingChunk,
				Slot:    slot,
				ChunkID: ref.ChunkID,
				Details: fmt.Sprintf("chunk of %s is missing from the document store", ref.FileName),
			})
		case file != ref.FileName:
			issues = append(issues, Inconsistency{
				Type:    InconsistencyFileMismatch,
				Slot:    slot,
				ChunkID: ref.ChunkID,
				Details: fmt.Sprintf("slot belongs to %s but the stored chunk to %s", ref.FileName, file),
			})
		}
	}

	for _, row := range rows {
		if !indexed[row.ChunkID] {
			issues = append(issues, Inconsistency{
				Type:    InconsistencyUnindexedChunk,
				Slot:    -1,
				ChunkID: row.ChunkID,
				Details: "stored chunk is not searchable",
			})
		}
	}

	if len(issues) > 0 {
		slog.Warn("index_drift_detected",
			slog.Int("slots", size),
			slog.Int("chunks", len(rows)),
			slog.Int("issues", len(issues)))
	}

	return &CheckResult{
		Checked:         size,
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// QuickCheck only compares the vector count with the stored chunk count.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	stats, err := c.docs.Stats(ctx)
	if err != nil {
		return false, err
	}
	vectors := c.corpus.Size()
	consistent := stats.Chunks == vectors
	if !consistent {
		slog.Debug("index counts mismatch",
			slog.Int("chunks", stats.Chunks),
			slog.Int("vectors", vectors))
	}
	return consistent, nil
}

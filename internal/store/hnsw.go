package store

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/coder/hnsw"
)

// HNSW defaults
const (
	DefaultHNSWM        = 16
	DefaultHNSWEfSearch = 64
)

// HNSWIndex layers a coder/hnsw graph over a FlatIndex. The flat vectors stay
// canonical: graph candidates are re-scored exactly, and the graph is rebuilt
// from them whenever it is missing or out of step. Indexes no larger than
// EfSearch are searched exactly.
type HNSWIndex struct {
	flat     *FlatIndex
	graph    *hnsw.Graph[uint64]
	m        int
	efSearch int
}

var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty HNSW index. Zero parameters select defaults.
func NewHNSWIndex(dims, m, efSearch int) *HNSWIndex {
	if m <= 0 {
		m = DefaultHNSWM
	}
	if efSearch <= 0 {
		efSearch = DefaultHNSWEfSearch
	}
	h := &HNSWIndex{
		flat:     NewFlatIndex(dims),
		m:        m,
		efSearch: efSearch,
	}
	h.graph = h.newGraph()
	return h
}

func (h *HNSWIndex) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = h.m
	g.EfSearch = h.efSearch
	g.Ml = 0.25
	return g
}

// Add appends to the flat store, then inserts graph nodes keyed by slot.
func (h *HNSWIndex) Add(ctx context.Context, vectors [][]float32) (int, error) {
	start, err := h.flat.Add(ctx, vectors)
	if err != nil {
		return 0, err
	}
	h.addNodes(start, h.flat.Size())
	return start, nil
}

func (h *HNSWIndex) addNodes(from, to int) {
	if from >= to {
		return
	}
	nodes := make([]hnsw.Node[uint64], 0, to-from)
	for slot := from; slot < to; slot++ {
		vec := make([]float32, h.flat.dims)
		copy(vec, h.flat.vector(slot))
		nodes = append(nodes, hnsw.MakeNode(uint64(slot), vec))
	}
	h.graph.Add(nodes...)
}

// Search asks the graph for k candidates and orders them by exact distance.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != h.flat.dims {
		return nil, ErrDimensionMismatch{Expected: h.flat.dims, Got: len(query)}
	}
	n := h.flat.Size()
	if k <= 0 || n == 0 {
		return []Hit{}, nil
	}
	if n <= h.efSearch {
		return h.flat.Search(ctx, query, k)
	}

	nodes := h.graph.Search(query, k)
	hits := make([]Hit, 0, len(nodes))
	for _, node := range nodes {
		slot := int(node.Key)
		if slot >= n {
			continue
		}
		hits = append(hits, Hit{Slot: slot, Distance: squaredL2(query, h.flat.vector(slot))})
	}
	sortHits(hits)
	return hits[:min(k, len(hits))], nil
}

// Size returns the number of vectors.
func (h *HNSWIndex) Size() int {
	return h.flat.Size()
}

// Dimensions returns the vector length.
func (h *HNSWIndex) Dimensions() int {
	return h.flat.dims
}

// Backend returns BackendHNSW.
func (h *HNSWIndex) Backend() Backend {
	return BackendHNSW
}

// Truncate drops every slot >= n and rebuilds the graph. coder/hnsw's Delete
// can leave the graph without an entry point, so nodes are never deleted.
func (h *HNSWIndex) Truncate(n int) error {
	if err := h.flat.Truncate(n); err != nil {
		return err
	}
	h.rebuild()
	return nil
}

func (h *HNSWIndex) rebuild() {
	h.graph = h.newGraph()
	h.addNodes(0, h.flat.Size())
}

// GraphPath is where Save exports the graph for a vector blob at path.
func GraphPath(path string) string {
	return path + ".graph"
}

// Save writes the vector blob to path and the graph to GraphPath(path).
func (h *HNSWIndex) Save(path string) error {
	if err := h.flat.Save(path); err != nil {
		return err
	}
	return WriteFileAtomic(GraphPath(path), func(w io.Writer) error {
		return h.graph.Export(w)
	})
}

// Load reads the vector blob, then imports the graph. A missing or
// inconsistent graph file is rebuilt from the vectors.
func (h *HNSWIndex) Load(path string) error {
	if err := h.flat.Load(path); err != nil {
		return err
	}

	g, err := h.importGraph(GraphPath(path))
	if err != nil || g.Len() != h.flat.Size() {
		reason := "size mismatch"
		if err != nil {
			reason = err.Error()
		}
		slog.Debug("hnsw_graph_rebuilt",
			slog.String("path", GraphPath(path)),
			slog.Int("vectors", h.flat.Size()),
			slog.String("reason", reason))
		h.rebuild()
		return nil
	}
	h.graph = g
	return nil
}

func (h *HNSWIndex) importGraph(path string) (*hnsw.Graph[uint64], error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	g := h.newGraph()
	// Import needs an io.ByteReader
	if err := g.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	return g, nil
}

// Package index owns the searchable corpus: the vector index and its slot map,
// committed to disk together.
//
// Every Commit appends vectors and slot records in memory, writes a complete
// new generation directory and then swaps the CURRENT pointer with a single
// rename. A crash at any point leaves either the old or the new generation
// live, never a mix. Writes are serialized by an RWMutex in-process and by an
// exclusive file lock across processes; searches only take the read lock.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/lockfile"
	"github.com/Aman-CERP/docchat/internal/store"
)

// Options configures Open.
type Options struct {
	// Dir holds CURRENT, the generation directories and the lock file.
	Dir string

	// Model and Dimensions describe the embedder. A corpus written with a
	// different model or dimension is rejected.
	Model      string
	Dimensions int

	Backend      store.Backend
	HNSWM        int
	HNSWEfSearch int

	// ReadOnly opens without the writer lock. Commit fails; Refresh picks up
	// generations written by the lock holder.
	ReadOnly bool
}

// Corpus is the vector index plus slot map behind one mutation entry point.
type Corpus struct {
	opts Options

	mu       sync.RWMutex
	vectors  store.VectorIndex
	slots    *store.SlotMap
	manifest Manifest

	lock *lockfile.Lock
	now  func() time.Time

	// pointerRead, if set, runs after CURRENT is read and before the
	// generation it names is loaded.
	pointerRead func(gen uint64)
}

// liveLoadAttempts bounds how often a reader follows CURRENT when the
// generation it named is swept by the writer before it could be loaded.
const liveLoadAttempts = 3

// Open loads the live generation from opts.Dir, or starts empty.
func Open(opts Options) (*Corpus, error) {
	if opts.Dir == "" {
		return nil, dcerrors.New(dcerrors.ErrCodeConfigInvalid, "index directory is required", nil)
	}
	if opts.Dimensions <= 0 {
		return nil, dcerrors.New(dcerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("index dimensions must be positive, got %d", opts.Dimensions), nil)
	}
	if opts.Backend == "" {
		opts.Backend = store.BackendFlat
	}

	c := &Corpus{opts: opts, now: time.Now}

	if !opts.ReadOnly {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, dcerrors.IOError("failed to create index directory", err)
		}
		c.lock = lockfile.New(filepath.Join(opts.Dir, lockFile))
		ok, err := c.lock.TryLock()
		if err != nil {
			return nil, dcerrors.IOError("failed to lock index", err)
		}
		if !ok {
			return nil, dcerrors.New(dcerrors.ErrCodeIndexLocked, "index is in use by another docchat process", nil).
				WithDetail("lock", c.lock.Path()).
				WithSuggestion("Stop the other writer (e.g. 'docchat serve') or open read-only")
		}
	}

	vectors, slots, manifest, _, err := c.loadLive(nil)
	if err != nil {
		c.release()
		return nil, err
	}
	c.vectors, c.slots, c.manifest = vectors, slots, manifest

	if !opts.ReadOnly {
		c.sweep()
	}

	slog.Debug("corpus_opened",
		slog.String("dir", opts.Dir),
		slog.Uint64("generation", manifest.Generation),
		slog.Int("vectors", manifest.Count),
		slog.String("backend", string(opts.Backend)),
		slog.Bool("read_only", opts.ReadOnly))
	return c, nil
}

func (c *Corpus) newVectorIndex() (store.VectorIndex, error) {
	return store.NewVectorIndex(store.VectorIndexConfig{
		Backend:    c.opts.Backend,
		Dimensions: c.opts.Dimensions,
		M:          c.opts.HNSWM,
		EfSearch:   c.opts.HNSWEfSearch,
	})
}

func (c *Corpus) emptyManifest() Manifest {
	return Manifest{
		FormatVersion: FormatVersion,
		Model:         c.opts.Model,
		Dimensions:    c.opts.Dimensions,
		Backend:       c.opts.Backend,
	}
}

// loadGeneration reads and validates generation gen. Generation 0 is empty.
func (c *Corpus) loadGeneration(gen uint64) (store.VectorIndex, *store.SlotMap, Manifest, error) {
	vectors, err := c.newVectorIndex()
	if err != nil {
		return nil, nil, Manifest{}, dcerrors.New(dcerrors.ErrCodeConfigInvalid, "invalid index configuration", err)
	}
	slots := store.NewSlotMap()
	if gen == 0 {
		return vectors, slots, c.emptyManifest(), nil
	}

	dir := filepath.Join(c.opts.Dir, genName(gen))
	corrupt := func(msg string, cause error) error {
		return dcerrors.New(dcerrors.ErrCodeCorruptIndex, msg, cause).
			WithDetail("generation", genName(gen))
	}

	m, err := readManifest(dir)
	if err != nil {
		return nil, nil, Manifest{}, corrupt("failed to read index manifest", err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, nil, Manifest{}, corrupt(fmt.Sprintf("unsupported index format version %d", m.FormatVersion), nil)
	}
	if m.Generation != gen {
		return nil, nil, Manifest{}, corrupt(fmt.Sprintf("manifest generation %d does not match %d", m.Generation, gen), nil)
	}
	if c.opts.Model != "" && m.Model != c.opts.Model {
		return nil, nil, Manifest{}, dcerrors.New(dcerrors.ErrCodeModelMismatch,
			fmt.Sprintf("index was built with model %q, configured model is %q", m.Model, c.opts.Model), nil).
			WithSuggestion("Use the original embedding model, or move the data directory aside and re-upload documents")
	}
	if m.Dimensions != c.opts.Dimensions {
		return nil, nil, Manifest{}, dcerrors.New(dcerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index has %d dimensions, embedder produces %d", m.Dimensions, c.opts.Dimensions), nil)
	}

	if err := vectors.Load(filepath.Join(dir, vectorsFile)); err != nil {
		return nil, nil, Manifest{}, corrupt("failed to load vectors", err)
	}
	if err := slots.Load(filepath.Join(dir, slotsFile)); err != nil {
		return nil, nil, Manifest{}, corrupt("failed to load slot map", err)
	}
	if vectors.Size() != m.Count || slots.Len() != m.Count || slots.MaxSlot() != m.Count-1 {
		return nil, nil, Manifest{}, corrupt(fmt.Sprintf(
			"index counts disagree: manifest %d, vectors %d, slots %d",
			m.Count, vectors.Size(), slots.Len()), nil)
	}
	m.Backend = c.opts.Backend
	return vectors, slots, m, nil
}

// Commit appends vectors with their slot records and persists a new generation
// before returning. refs[i] describes vectors[i]. On failure the in-memory
// state is rolled back and the previous generation stays live.
func (c *Corpus) Commit(ctx context.Context, vectors [][]float32, refs []store.ChunkRef) (start int, err error) {
	if c.opts.ReadOnly {
		return 0, dcerrors.New(dcerrors.ErrCodeIndexLocked, "index is open read-only", nil)
	}
	if len(vectors) != len(refs) {
		return 0, dcerrors.InternalError(
			fmt.Sprintf("commit has %d vectors but %d slot records", len(vectors), len(refs)), nil)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.vectors.Size()
	if len(vectors) == 0 {
		return prev, nil
	}

	defer func() {
		if err != nil {
			c.rollback(prev)
		}
	}()

	start, err = c.vectors.Add(ctx, vectors)
	if err != nil {
		var mismatch store.ErrDimensionMismatch
		if errors.As(err, &mismatch) {
			return 0, dcerrors.New(dcerrors.ErrCodeDimensionMismatch, mismatch.Error(), err)
		}
		return 0, dcerrors.New(dcerrors.ErrCodeIndexFailed, "failed to add vectors", err)
	}
	for i, ref := range refs {
		if err := c.slots.Record(start+i, ref); err != nil {
			return 0, dcerrors.New(dcerrors.ErrCodeIndexFailed, "failed to record slot", err)
		}
	}

	next := c.manifest
	next.Generation++
	next.Count = c.vectors.Size()
	next.CreatedAt = c.now().UTC()
	if err := c.persist(next); err != nil {
		return 0, err
	}

	previous := c.manifest.Generation
	c.manifest = next
	if previous > 0 {
		if err := os.RemoveAll(filepath.Join(c.opts.Dir, genName(previous))); err != nil {
			slog.Warn("index_generation_cleanup_failed",
				slog.String("generation", genName(previous)),
				slog.String("error", err.Error()))
		}
	}

	slog.Debug("corpus_committed",
		slog.Uint64("generation", next.Generation),
		slog.Int("start_slot", start),
		slog.Int("added", len(vectors)),
		slog.Int("total", next.Count))
	return start, nil
}

// persist writes generation m into a staging directory, renames it into place
// and points CURRENT at it.
func (c *Corpus) persist(m Manifest) error {
	staging := filepath.Join(c.opts.Dir, fmt.Sprintf("%s%08d", stagingPrefix, m.Generation))
	final := filepath.Join(c.opts.Dir, genName(m.Generation))

	fail := func(msg string, cause error) error {
		_ = os.RemoveAll(staging)
		return dcerrors.New(dcerrors.ErrCodeStorageFailed, msg, cause).
			WithDetail("generation", genName(m.Generation))
	}

	if err := os.RemoveAll(staging); err != nil {
		return fail("failed to clear staging directory", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fail("failed to create staging directory", err)
	}
	if err := c.vectors.Save(filepath.Join(staging, vectorsFile)); err != nil {
		return fail("failed to write vectors", err)
	}
	if err := c.slots.Save(filepath.Join(staging, slotsFile)); err != nil {
		return fail("failed to write slot map", err)
	}
	if err := writeManifest(staging, m); err != nil {
		return fail("failed to write manifest", err)
	}

	_ = os.RemoveAll(final)
	if err := os.Rename(staging, final); err != nil {
		return fail("failed to publish generation", err)
	}
	if err := writeCurrent(c.opts.Dir, m.Generation); err != nil {
		_ = os.RemoveAll(final)
		return fail("failed to update index pointer", err)
	}
	return nil
}

func (c *Corpus) rollback(n int) {
	if err := c.vectors.Truncate(n); err != nil {
		slog.Error("index_rollback_failed", slog.Int("size", n), slog.String("error", err.Error()))
	}
	c.slots.Truncate(n)
}

// sweep removes staging and generation directories other than the live one,
// left behind by interrupted commits.
func (c *Corpus) sweep() {
	entries, err := os.ReadDir(c.opts.Dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		gen, isGen := parseGenName(name)
		if strings.HasPrefix(name, stagingPrefix) || (isGen && gen != c.manifest.Generation) {
			if err := os.RemoveAll(filepath.Join(c.opts.Dir, name)); err == nil {
				slog.Debug("index_stale_dir_removed", slog.String("dir", name))
			}
		}
	}
}

// Refresh reloads the corpus if another process committed a newer generation.
// It reports whether anything changed.
func (c *Corpus) Refresh() (bool, error) {
	vectors, slots, manifest, loaded, err := c.loadLive(func(gen uint64) bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return gen == c.manifest.Generation
	})
	if err != nil || !loaded {
		return false, err
	}

	c.mu.Lock()
	c.vectors, c.slots, c.manifest = vectors, slots, manifest
	c.mu.Unlock()
	return true, nil
}

// loadLive loads the generation CURRENT names, unless have reports it is
// already loaded. A load that fails because CURRENT moved on meanwhile is
// retried against the new generation.
func (c *Corpus) loadLive(have func(gen uint64) bool) (store.VectorIndex, *store.SlotMap, Manifest, bool, error) {
	var err error
	for range liveLoadAttempts {
		var gen uint64
		gen, err = readCurrent(c.opts.Dir)
		if err != nil {
			return nil, nil, Manifest{}, false, dcerrors.New(dcerrors.ErrCodeCorruptIndex, "failed to read index pointer", err)
		}
		if have != nil && have(gen) {
			return nil, nil, Manifest{}, false, nil
		}
		if c.pointerRead != nil {
			c.pointerRead(gen)
		}

		var (
			vectors store.VectorIndex
			slots   *store.SlotMap
			m       Manifest
		)
		vectors, slots, m, err = c.loadGeneration(gen)
		if err == nil {
			return vectors, slots, m, true, nil
		}
		if now, rerr := readCurrent(c.opts.Dir); rerr != nil || now == gen {
			return nil, nil, Manifest{}, false, err
		}
		slog.Debug("index_generation_superseded", slog.String("generation", genName(gen)))
	}
	return nil, nil, Manifest{}, false, err
}

// Search returns the k nearest slots to query.
func (c *Corpus) Search(ctx context.Context, query []float32, k int) ([]store.Hit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hits, err := c.vectors.Search(ctx, query, k)
	if err != nil {
		var mismatch store.ErrDimensionMismatch
		if errors.As(err, &mismatch) {
			return nil, dcerrors.New(dcerrors.ErrCodeDimensionMismatch, mismatch.Error(), err)
		}
		return nil, dcerrors.New(dcerrors.ErrCodeSearchFailed, "vector search failed", err)
	}
	return hits, nil
}

// Resolve returns the chunk recorded for slot.
func (c *Corpus) Resolve(slot int) (store.ChunkRef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slots.Resolve(slot)
}

// Size is the number of indexed vectors.
func (c *Corpus) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vectors.Size()
}

// Manifest describes the live generation.
func (c *Corpus) Manifest() Manifest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manifest
}

// Dimensions is the vector length the corpus accepts.
func (c *Corpus) Dimensions() int {
	return c.opts.Dimensions
}

// ReadOnly reports whether Commit is disabled.
func (c *Corpus) ReadOnly() bool {
	return c.opts.ReadOnly
}

func (c *Corpus) release() {
	if c.lock != nil {
		_ = c.lock.Unlock()
	}
}

// Close releases the writer lock. The corpus is already persisted.
func (c *Corpus) Close() error {
	if c.lock == nil {
		return nil
	}
	return c.lock.Unlock()
}

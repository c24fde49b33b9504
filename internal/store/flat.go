package store

import (
	"bufio"
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// Vector blob layout, little endian:
//
//	magic "DCVX" | version u16 | reserved u16 | dim u32 | count u64 | count*dim float32
const (
	vectorMagic      = "DCVX"
	vectorVersion    = 1
	vectorHeaderSize = 4 + 2 + 2 + 4 + 8
)

type vectorHeader struct {
	Magic    [4]byte
	Version  uint16
	Reserved uint16
	Dim      uint32
	Count    uint64
}

// FlatIndex is exact squared-L2 search over vectors stored contiguously.
type FlatIndex struct {
	dims int
	data []float32
}

var _ VectorIndex = (*FlatIndex)(nil)

// NewFlatIndex creates an empty flat index.
func NewFlatIndex(dims int) *FlatIndex {
	return &FlatIndex{dims: dims}
}

// Add appends vectors, rejecting the whole batch if any has the wrong length.
func (f *FlatIndex) Add(_ context.Context, vectors [][]float32) (int, error) {
	for _, v := range vectors {
		if len(v) != f.dims {
			return 0, ErrDimensionMismatch{Expected: f.dims, Got: len(v)}
		}
	}
	start := f.Size()
	f.data = slices.Grow(f.data, len(vectors)*f.dims)
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return start, nil
}

// Search scans every vector. Ties in distance go to the lower slot.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dims {
		return nil, ErrDimensionMismatch{Expected: f.dims, Got: len(query)}
	}
	n := f.Size()
	if k <= 0 || n == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, n)
	for slot := 0; slot < n; slot++ {
		if slot%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		hits[slot] = Hit{Slot: slot, Distance: squaredL2(query, f.vector(slot))}
	}
	sortHits(hits)
	return hits[:min(k, n)], nil
}

func sortHits(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Slot, b.Slot)
	})
}

func (f *FlatIndex) vector(slot int) []float32 {
	return f.data[slot*f.dims : (slot+1)*f.dims]
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Size returns the number of vectors.
func (f *FlatIndex) Size() int {
	return len(f.data) / f.dims
}

// Dimensions returns the vector length.
func (f *FlatIndex) Dimensions() int {
	return f.dims
}

// Backend returns BackendFlat.
func (f *FlatIndex) Backend() Backend {
	return BackendFlat
}

// Truncate drops every slot >= n.
func (f *FlatIndex) Truncate(n int) error {
	if n < 0 || n > f.Size() {
		return fmt.Errorf("truncate to %d out of range [0, %d]", n, f.Size())
	}
	f.data = f.data[:n*f.dims]
	return nil
}

// Save writes the blob to a temp file in the same directory, syncs it, then
// renames it over path.
func (f *FlatIndex) Save(path string) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		hdr := vectorHeader{
			Version: vectorVersion,
			Dim:     uint32(f.dims),
			Count:   uint64(f.Size()),
		}
		copy(hdr.Magic[:], vectorMagic)
		if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
			return err
		}
		if len(f.data) == 0 {
			return nil
		}
		return binary.Write(w, binary.LittleEndian, f.data)
	})
}

// Load replaces the index with the blob at path. The blob's dimension must
// match the index.
func (f *FlatIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open vector file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat vector file: %w", err)
	}

	r := bufio.NewReader(file)
	var hdr vectorHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("failed to read vector header: %w", err)
	}
	if string(hdr.Magic[:]) != vectorMagic {
		return fmt.Errorf("not a vector file: bad magic %q", hdr.Magic[:])
	}
	if hdr.Version != vectorVersion {
		return fmt.Errorf("unsupported vector file version %d", hdr.Version)
	}
	if int(hdr.Dim) != f.dims {
		return ErrDimensionMismatch{Expected: f.dims, Got: int(hdr.Dim)}
	}
	want := int64(vectorHeaderSize) + int64(hdr.Count)*int64(hdr.Dim)*4
	if info.Size() != want {
		return fmt.Errorf("vector file truncated: %d bytes, header promises %d", info.Size(), want)
	}

	data := make([]float32, int(hdr.Count)*int(hdr.Dim))
	if len(data) > 0 {
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return fmt.Errorf("failed to read vectors: %w", err)
		}
	}
	f.data = data
	return nil
}

// ReadVectorHeader returns the dimension and count recorded in a vector blob.
func ReadVectorHeader(path string) (dims, count int, err error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = file.Close() }()

	var hdr vectorHeader
	if err := binary.Read(file, binary.LittleEndian, &hdr); err != nil {
		return 0, 0, fmt.Errorf("failed to read vector header: %w", err)
	}
	if string(hdr.Magic[:]) != vectorMagic {
		return 0, 0, fmt.Errorf("not a vector file: bad magic %q", hdr.Magic[:])
	}
	return int(hdr.Dim), int(hdr.Count), nil
}

// WriteFileAtomic streams write into a temp file beside path, fsyncs and
// renames it into place. The temp file is removed on any failure.
func WriteFileAtomic(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

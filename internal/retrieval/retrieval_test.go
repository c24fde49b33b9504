package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dcerrors "github.com/Aman-CERP/docchat/internal/errors"
	"github.com/Aman-CERP/docchat/internal/store"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0, 0}, nil
}

type fakeIndex struct {
	hits     []store.Hit
	refs     map[int]store.ChunkRef
	searched int
}

func (f *fakeIndex) Size() int { return len(f.hits) }

func (f *fakeIndex) Search(_ context.Context, _ []float32, k int) ([]store.Hit, error) {
	f.searched++
	return f.hits[:min(k, len(f.hits))], nil
}

func (f *fakeIndex) Resolve(slot int) (store.ChunkRef, bool) {
	ref, ok := f.refs[slot]
	return ref, ok
}

type fakeChunks struct {
	chunks map[int64]store.Chunk
	errFor map[int64]error
}

func (f *fakeChunks) GetChunk(_ context.Context, id int64) (*store.Chunk, error) {
	if err, ok := f.errFor[id]; ok {
		return nil, err
	}
	c, ok := f.chunks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func threeSlots() *fakeIndex {
	return &fakeIndex{
		hits: []store.Hit{{Slot: 0, Distance: 0.1}, {Slot: 1, Distance: 0.2}, {Slot: 2, Distance: 0.3}},
		refs: map[int]store.ChunkRef{
			0: {ChunkID: 10, FileName: "a.txt"},
			1: {ChunkID: 11, FileName: "a.txt"},
			2: {ChunkID: 12, FileName: "b.pdf"},
		},
	}
}

func allChunks() *fakeChunks {
	return &fakeChunks{chunks: map[int64]store.Chunk{
		10: {ID: 10, FileName: "a.txt", Text: "first"},
		11: {ID: 11, FileName: "a.txt", Text: "second"},
		12: {ID: 12, FileName: "b.pdf", Text: "third"},
	}}
}

func TestRetrieve_ReturnsPassagesInDistanceOrder(t *testing.T) {
	r := New(&fakeEmbedder{}, threeSlots(), allChunks())

	passages, err := r.Retrieve(context.Background(), "q", 5)

	require.NoError(t, err)
	require.Len(t, passages, 3)
	assert.Equal(t, Passage{Slot: 0, FileName: "a.txt", Text: "first", Distance: 0.1}, passages[0])
	assert.Equal(t, "third", passages[2].Text)
}

func TestRetrieve_EmptyIndexSkipsEmbeddingAndSearch(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	r := New(emb, idx, allChunks())

	passages, err := r.Retrieve(context.Background(), "q", 5)

	require.NoError(t, err)
	assert.Empty(t, passages)
	assert.Equal(t, 0, emb.calls)
	assert.Equal(t, 0, idx.searched)
}

func TestRetrieve_SkipsSlotWithoutMetadata(t *testing.T) {
	// Given: three slots but metadata only for 0 and 2
	idx := threeSlots()
	delete(idx.refs, 1)
	var drifted []DriftReason
	r := New(&fakeEmbedder{}, idx, allChunks(), WithDriftHandler(func(slot int, reason DriftReason) {
		assert.Equal(t, 1, slot)
		drifted = append(drifted, reason)
	}))

	// When: retrieving all three
	passages, err := r.Retrieve(context.Background(), "q", 3)

	// Then: slot 1 is skipped without error
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, 0, passages[0].Slot)
	assert.Equal(t, 2, passages[1].Slot)
	assert.Equal(t, []DriftReason{DriftNoMetadata}, drifted)
}

func TestRetrieve_SkipsMissingAndFailingChunks(t *testing.T) {
	chunks := allChunks()
	delete(chunks.chunks, 10)
	chunks.errFor = map[int64]error{12: errors.New("disk I/O error")}
	reasons := map[int]DriftReason{}
	r := New(&fakeEmbedder{}, threeSlots(), chunks, WithDriftHandler(func(slot int, reason DriftReason) {
		reasons[slot] = reason
	}))

	passages, err := r.Retrieve(context.Background(), "q", 3)

	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "second", passages[0].Text)
	assert.Equal(t, map[int]DriftReason{0: DriftNoChunk, 2: DriftChunkLookupFailed}, reasons)
}

func TestRetrieve_SkipsChunkOfAnotherFile(t *testing.T) {
	// Given: slot 1 records a.txt but chunk 11 now holds b.pdf text
	chunks := allChunks()
	chunks.chunks[11] = store.Chunk{ID: 11, FileName: "b.pdf", Text: "unrelated"}
	reasons := map[int]DriftReason{}
	r := New(&fakeEmbedder{}, threeSlots(), chunks, WithDriftHandler(func(slot int, reason DriftReason) {
		reasons[slot] = reason
	}))

	// When
	passages, err := r.Retrieve(context.Background(), "q", 3)

	// Then: the mismatched text never reaches the prompt
	require.NoError(t, err)
	require.Len(t, passages, 2)
	for _, p := range passages {
		assert.NotEqual(t, "unrelated", p.Text)
	}
	assert.Equal(t, map[int]DriftReason{1: DriftFileMismatch}, reasons)
}

func TestRetrieve_DefaultsK(t *testing.T) {
	idx := threeSlots()
	r := New(&fakeEmbedder{}, idx, allChunks())

	passages, err := r.Retrieve(context.Background(), "q", 0)

	require.NoError(t, err)
	assert.Len(t, passages, 3)
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	r := New(&fakeEmbedder{err: errors.New("model gone")}, threeSlots(), allChunks())

	_, err := r.Retrieve(context.Background(), "q", 5)

	assert.True(t, dcerrors.HasCode(err, dcerrors.ErrCodeEmbeddingFailed))
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Run("no passages keeps base", func(t *testing.T) {
		assert.Equal(t, "base", BuildSystemPrompt("base", nil, 4000))
	})

	t.Run("labels and separates sources", func(t *testing.T) {
		got := BuildSystemPrompt("base", []Passage{
			{FileName: "a.txt", Text: "one"},
			{FileName: "b.pdf", Text: "two"},
		}, 4000)

		assert.Equal(t, "base\n\nRetrieved documents:\nSource: a.txt\none\n\n---\n\nSource: b.pdf\ntwo", got)
	})

	t.Run("cuts block at budget", func(t *testing.T) {
		long := strings.Repeat("x", 5000)
		got := BuildSystemPrompt("base", []Passage{{FileName: "a.txt", Text: long}}, 4000)

		block := strings.TrimPrefix(got, "base\n\nRetrieved documents:\n")
		assert.Equal(t, 4000, len(block))
		assert.True(t, strings.HasPrefix(block, "Source: a.txt\nxxx"))
	})

	t.Run("budget counts characters not bytes", func(t *testing.T) {
		text := strings.Repeat("é", 100)
		block := FormatContext([]Passage{{FileName: "f", Text: text}}, 20)

		assert.True(t, utf8.ValidString(block))
		assert.Equal(t, 20, utf8.RuneCountInString(block))
	})
}

package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotMap_RecordAndResolve(t *testing.T) {
	m := NewSlotMap()
	require.NoError(t, m.Record(0, ChunkRef{ChunkID: 10, FileName: "a.txt"}))
	require.NoError(t, m.Record(1, ChunkRef{ChunkID: 11, FileName: "a.txt"}))

	ref, ok := m.Resolve(1)
	assert.True(t, ok)
	assert.Equal(t, ChunkRef{ChunkID: 11, FileName: "a.txt"}, ref)

	_, ok = m.Resolve(2)
	assert.False(t, ok)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 1, m.MaxSlot())
}

func TestSlotMap_RecordRejectsDuplicateAndNegative(t *testing.T) {
	m := NewSlotMap()
	require.NoError(t, m.Record(0, ChunkRef{ChunkID: 1}))

	assert.Error(t, m.Record(0, ChunkRef{ChunkID: 2}))
	assert.Error(t, m.Record(-1, ChunkRef{ChunkID: 3}))
}

func TestSlotMap_Truncate(t *testing.T) {
	m := NewSlotMap()
	for i := range 5 {
		require.NoError(t, m.Record(i, ChunkRef{ChunkID: int64(i + 1)}))
	}

	m.Truncate(2)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 1, m.MaxSlot())
	assert.Equal(t, -1, NewSlotMap().MaxSlot())
}

func TestSlotMap_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.json")
	m := NewSlotMap()
	require.NoError(t, m.Record(0, ChunkRef{ChunkID: 4, FileName: "notes.txt"}))
	require.NoError(t, m.Record(1, ChunkRef{ChunkID: 5, FileName: "paper.pdf"}))
	require.NoError(t, m.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chunk_id": 5`)
	assert.Contains(t, string(data), `"file_name": "paper.pdf"`)

	loaded := NewSlotMap()
	require.NoError(t, loaded.Load(path))
	ref, ok := loaded.Resolve(1)
	require.True(t, ok)
	assert.Equal(t, ChunkRef{ChunkID: 5, FileName: "paper.pdf"}, ref)
}

func TestSlotMap_LoadRejectsBadKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"x": {"chunk_id": 1, "file_name": "a"}}`), 0o644))

	assert.Error(t, NewSlotMap().Load(path))
}

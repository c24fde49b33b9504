package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ChunkRef is the provenance of one vector slot.
type ChunkRef struct {
	ChunkID  int64  `json:"chunk_id"`
	FileName string `json:"file_name"`
}

// SlotMap maps vector slots to chunk provenance. It is append-only: a slot is
// recorded once and never reassigned.
type SlotMap struct {
	refs map[int]ChunkRef
}

// NewSlotMap creates an empty map.
func NewSlotMap() *SlotMap {
	return &SlotMap{refs: make(map[int]ChunkRef)}
}

// Record maps slot to ref. Recording an already-recorded slot is an error.
func (m *SlotMap) Record(slot int, ref ChunkRef) error {
	if slot < 0 {
		return fmt.Errorf("slot must be non-negative, got %d", slot)
	}
	if existing, ok := m.refs[slot]; ok {
		return fmt.Errorf("slot %d already recorded for chunk %d", slot, existing.ChunkID)
	}
	m.refs[slot] = ref
	return nil
}

// Resolve returns the provenance of slot, if recorded.
func (m *SlotMap) Resolve(slot int) (ChunkRef, bool) {
	ref, ok := m.refs[slot]
	return ref, ok
}

// Len returns the number of recorded slots.
func (m *SlotMap) Len() int {
	return len(m.refs)
}

// MaxSlot returns the highest recorded slot, or -1 when empty.
func (m *SlotMap) MaxSlot() int {
	highest := -1
	for slot := range m.refs {
		if slot > highest {
			highest = slot
		}
	}
	return highest
}

// Truncate forgets every slot >= n.
func (m *SlotMap) Truncate(n int) {
	for slot := range m.refs {
		if slot >= n {
			delete(m.refs, slot)
		}
	}
}

// Save writes {"<slot>": {"chunk_id": N, "file_name": "..."}} atomically.
func (m *SlotMap) Save(path string) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m.refs)
	})
}

// Load replaces the map with the sidecar at path.
func (m *SlotMap) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read slot map: %w", err)
	}
	var raw map[string]ChunkRef
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse slot map: %w", err)
	}
	refs := make(map[int]ChunkRef, len(raw))
	for key, ref := range raw {
		slot, err := strconv.Atoi(key)
		if err != nil || slot < 0 {
			return fmt.Errorf("slot map has invalid slot %q", key)
		}
		refs[slot] = ref
	}
	m.refs = refs
	return nil
}

package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_SingleEventPassesThrough(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Name: "a.txt", Operation: OpCreate})

	batch := receive(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "a.txt", batch[0].Name)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_WritesAfterCreateStayCreate(t *testing.T) {
	// Given: a file created then written several times
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Name: "a.txt", Operation: OpCreate})
	for range 5 {
		d.Add(FileEvent{Name: "a.txt", Operation: OpModify})
	}

	// Then: one CREATE comes out
	batch := receive(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_CreateThenRenameCancels(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Name: "gone.txt", Operation: OpCreate})
	d.Add(FileEvent{Name: "gone.txt", Operation: OpRename})
	d.Add(FileEvent{Name: "kept.txt", Operation: OpCreate})

	batch := receive(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "kept.txt", batch[0].Name)
}

func TestDebouncer_DeleteThenCreateIsModify(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Name: "a.txt", Operation: OpDelete})
	d.Add(FileEvent{Name: "a.txt", Operation: OpCreate})

	batch := receive(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncer_BatchSortedByName(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		d.Add(FileEvent{Name: name, Operation: OpCreate})
	}

	batch := receive(t, d)
	require.Len(t, batch, 3)
	assert.Equal(t, "a.txt", batch[0].Name)
	assert.Equal(t, "b.txt", batch[1].Name)
	assert.Equal(t, "c.txt", batch[2].Name)
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Name: "a.txt", Operation: OpCreate})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Name: "b.txt", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok, "output is closed and pending events are discarded")
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "UNKNOWN", Operation(42).String())
}

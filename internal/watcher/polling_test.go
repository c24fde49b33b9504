package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	now := time.Now()
	t0 := now.Add(-time.Minute)
	prev := map[string]fileSnapshot{
		"same.txt":    {modTime: t0, size: 1},
		"changed.txt": {modTime: t0, size: 1},
		"removed.txt": {modTime: t0, size: 1},
	}
	cur := map[string]fileSnapshot{
		"same.txt":    {modTime: t0, size: 1},
		"changed.txt": {modTime: t0, size: 2},
		"new.txt":     {modTime: now, size: 3},
	}

	ops := map[string]Operation{}
	for _, ev := range diff(prev, cur, now) {
		ops[ev.Name] = ev.Operation
	}

	assert.Equal(t, map[string]Operation{
		"changed.txt": OpModify,
		"removed.txt": OpDelete,
		"new.txt":     OpCreate,
	}, ops)
}

func TestPoller_SnapshotSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("abc"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "processed"), 0o755))

	snap, err := newPoller(dir, time.Second).snapshot()

	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, int64(3), snap["a.txt"].size)
}

func TestPoller_MissingDirectory(t *testing.T) {
	_, err := newPoller(filepath.Join(t.TempDir(), "nope"), time.Second).snapshot()
	assert.Error(t, err)
}

func TestIgnored(t *testing.T) {
	tests := map[string]bool{
		"notes.txt":            false,
		"report.PDF":           false,
		".hidden.txt":          true,
		"notes.txt~":           true,
		"download.part":        true,
		"paper.pdf.crdownload": true,
		"x.tmp":                true,
		"":                     true,
	}
	for name, want := range tests {
		assert.Equal(t, want, Ignored(name), name)
	}
}

package lockfile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLock_SecondHolderIsRejected(t *testing.T) {
	// Given: one lock holding the file
	path := filepath.Join(t.TempDir(), "nested", ".lock")
	first := New(path)
	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = first.Unlock() }()

	// When: a second lock on the same path tries
	second := New(path)
	ok, err = second.TryLock()

	// Then: it is refused without blocking
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, second.IsLocked())
	assert.True(t, first.IsLocked())
}

func TestUnlock_ReleasesForOthers(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	first := New(path)
	_, err := first.TryLock()
	require.NoError(t, err)

	require.NoError(t, first.Unlock())
	require.NoError(t, first.Unlock())

	second := New(path)
	ok, err := second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, second.Unlock())
}

func TestLock_RespectsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	holder := New(path)
	_, err := holder.TryLock()
	require.NoError(t, err)
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = New(path).Lock(ctx)
	assert.Error(t, err)
}

func TestLock_AcquiresWhenFree(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), ".lock"))

	require.NoError(t, l.Lock(context.Background()))
	assert.True(t, l.IsLocked())
	assert.Equal(t, filepath.Base(l.Path()), ".lock")
	assert.NoError(t, l.Unlock())
}

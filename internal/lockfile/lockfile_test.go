package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire_CreatesLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "quarry.lock")
	lock := New(path)

	acquired, err := lock.TryAcquire()

	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, lock.Release())
}

func TestRelease_WithoutAcquireIsNoOp(t *testing.T) {
	lock := New(filepath.Join(t.TempDir(), "quarry.lock"))

	assert.NoError(t, lock.Release())
}

func TestTryAcquire_ReacquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarry.lock")

	first := New(path)
	acquired, err := first.TryAcquire()
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, first.Release())

	second := New(path)
	acquired, err = second.TryAcquire()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, second.Release())
}

package manifest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

func newTestManifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := New("")
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func entry(path string) Entry {
	return Entry{
		Path:          path,
		Size:          1024,
		ModTimeUnix:   1756600000,
		Fingerprint:   "1024:1756600000:abcd",
		State:         "indexed",
		LastIndexedAt: time.Unix(1756600100, 0).UTC(),
	}
}

func TestManifest_UpsertAndGet(t *testing.T) {
	m := newTestManifest(t)
	ctx := context.Background()

	e := entry("/docs/notes.md")
	require.NoError(t, m.Upsert(ctx, e))

	got, err := m.Get(ctx, "/docs/notes.md")
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestManifest_UpsertReplaces(t *testing.T) {
	m := newTestManifest(t)
	ctx := context.Background()

	e := entry("/docs/notes.md")
	require.NoError(t, m.Upsert(ctx, e))

	e.Fingerprint = "2048:1756600200:ef01"
	e.Size = 2048
	e.State = "pending"
	require.NoError(t, m.Upsert(ctx, e))

	got, err := m.Get(ctx, "/docs/notes.md")
	require.NoError(t, err)
	assert.Equal(t, "2048:1756600200:ef01", got.Fingerprint)
	assert.Equal(t, int64(2048), got.Size)
	assert.Equal(t, "pending", got.State)

	all, err := m.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestManifest_RetryableFailureRoundTrips(t *testing.T) {
	m := newTestManifest(t)
	ctx := context.Background()

	e := entry("/docs/flaky.md")
	e.State = "failed"
	e.LastError = "embed: provider unreachable"
	e.Retryable = true
	require.NoError(t, m.Upsert(ctx, e))

	got, err := m.Get(ctx, "/docs/flaky.md")
	require.NoError(t, err)
	assert.True(t, got.Retryable)
	assert.Equal(t, "embed: provider unreachable", got.LastError)
}

func TestManifest_GetUnknownPath(t *testing.T) {
	m := newTestManifest(t)

	_, err := m.Get(context.Background(), "/missing.md")
	require.Error(t, err)
	assert.Equal(t, qerrors.ErrCodeNotFound, qerrors.GetCode(err))
}

func TestManifest_AllOrderedByPath(t *testing.T) {
	m := newTestManifest(t)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, entry("/docs/b.md")))
	require.NoError(t, m.Upsert(ctx, entry("/docs/a.md")))
	require.NoError(t, m.Upsert(ctx, entry("/docs/c.md")))

	all, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/docs/a.md", all[0].Path)
	assert.Equal(t, "/docs/b.md", all[1].Path)
	assert.Equal(t, "/docs/c.md", all[2].Path)
}

func TestManifest_Delete(t *testing.T) {
	m := newTestManifest(t)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, entry("/docs/notes.md")))
	require.NoError(t, m.Delete(ctx, "/docs/notes.md"))

	_, err := m.Get(ctx, "/docs/notes.md")
	assert.Equal(t, qerrors.ErrCodeNotFound, qerrors.GetCode(err))

	// Deleting a missing entry is a no-op
	require.NoError(t, m.Delete(ctx, "/docs/notes.md"))
}

func TestManifest_SetState(t *testing.T) {
	m := newTestManifest(t)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, entry("/docs/notes.md")))
	require.NoError(t, m.SetState(ctx, "/docs/notes.md", "failed", "extract: corrupt file"))

	got, err := m.Get(ctx, "/docs/notes.md")
	require.NoError(t, err)
	assert.Equal(t, "failed", got.State)
	assert.Equal(t, "extract: corrupt file", got.LastError)

	err = m.SetState(ctx, "/missing.md", "failed", "x")
	assert.Equal(t, qerrors.ErrCodeNotFound, qerrors.GetCode(err))
}

func TestManifest_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")
	ctx := context.Background()

	m, err := New(path)
	require.NoError(t, err)
	require.NoError(t, m.Upsert(ctx, entry("/docs/notes.md")))
	require.NoError(t, m.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "/docs/notes.md")
	require.NoError(t, err)
	assert.Equal(t, "1024:1756600000:abcd", got.Fingerprint)
	assert.Equal(t, "indexed", got.State)
}

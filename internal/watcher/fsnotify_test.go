package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) *FSWatcher {
	t.Helper()

	w, err := NewFSWatcher(Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})

	go func() { _ = w.Start(ctx, root) }()

	// Give the watch set a moment to establish
	time.Sleep(100 * time.Millisecond)
	return w
}

func waitForBatch(t *testing.T, w *FSWatcher) []Event {
	t.Helper()
	select {
	case events := <-w.Events():
		return events
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for events")
		return nil
	}
}

func TestFSWatcher_DetectsCreate(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	path := filepath.Join(root, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	events := waitForBatch(t, w)
	require.NotEmpty(t, events)
	assert.Equal(t, path, events[0].Path)
	assert.Equal(t, OpCreate, events[0].Op)
}

func TestFSWatcher_DetectsDelete(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	w := startWatcher(t, root)
	require.NoError(t, os.Remove(path))

	events := waitForBatch(t, w)
	require.NotEmpty(t, events)
	assert.Equal(t, path, events[0].Path)
	assert.Equal(t, OpDelete, events[0].Op)
}

func TestFSWatcher_IgnoresHiddenFiles(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "visible.md"), []byte("x"), 0o644))

	events := waitForBatch(t, w)
	require.Len(t, events, 1)
	assert.Equal(t, filepath.Join(root, "visible.md"), events[0].Path)
}

func TestFSWatcher_IgnoreHook(t *testing.T) {
	root := t.TempDir()

	w, err := NewFSWatcher(Options{
		DebounceWindow: 50 * time.Millisecond,
		ShouldIgnore: func(path string) bool {
			return filepath.Ext(path) == ".tmp"
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	go func() { _ = w.Start(ctx, root) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "scratch.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "kept.md"), []byte("x"), 0o644))

	events := waitForBatch(t, w)
	require.Len(t, events, 1)
	assert.Equal(t, filepath.Join(root, "kept.md"), events[0].Path)
}

func TestFSWatcher_StopDuringEmitDoesNotPanic(t *testing.T) {
	w, err := NewFSWatcher(Options{DebounceWindow: 10 * time.Millisecond, EventBufferSize: 1})
	require.NoError(t, err)

	// Hammer the emit paths while Stop closes the channels
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			w.emitEvents([]Event{{Path: "x.txt", Op: OpModify, Timestamp: time.Now()}})
			w.emitError(errors.New("transient"))
		}
	}()

	time.Sleep(time.Millisecond)
	require.NoError(t, w.Stop())
	<-done
}

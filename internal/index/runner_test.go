package index

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_InitialScanIndexesAndPersists(t *testing.T) {
	env := newCoordEnv(t)
	path := env.write(t, "doc.txt", "runner indexes this on startup")

	var persisted atomic.Int32
	runner := NewRunner(env.coord, nil, []string{env.root}, time.Hour, func() error {
		persisted.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		return env.coord.Status()[path].State == StateIndexed
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(1), persisted.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestRunner_PeriodicRescanPicksUpNewFiles(t *testing.T) {
	env := newCoordEnv(t)

	runner := NewRunner(env.coord, nil, []string{env.root}, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx) }()

	// Let the initial scan finish, then drop a new file in
	time.Sleep(100 * time.Millisecond)
	path := filepath.Join(env.root, "late.txt")
	require.NoError(t, os.WriteFile(path, []byte("arrived after startup"), 0o644))

	require.Eventually(t, func() bool {
		return env.coord.Status()[path].State == StateIndexed
	}, 5*time.Second, 20*time.Millisecond)
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherPicksUpFileWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Save(Default(), path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := NewWatcher(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, Default(), w.Latest())

	updated := Default()
	updated.MinArea = 250
	updated.LowerGreen.H = 40
	require.NoError(t, Save(updated, path))

	require.Eventually(t, func() bool { return w.Latest() == updated },
		2*time.Second, 10*time.Millisecond)
}

func TestWatcherFallsBackOnMalformedWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	tuned := Default()
	tuned.MinArea = 500
	require.NoError(t, Save(tuned, path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := NewWatcher(ctx, path)
	require.NoError(t, err)
	require.Equal(t, tuned, w.Latest())

	// A broken write degrades to the documented defaults, never to a
	// stale or half-parsed value.
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	require.Eventually(t, func() bool { return w.Latest() == Default() },
		2*time.Second, 10*time.Millisecond)
}

package framesource

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDecoder builds a stand-in decoder binary that emits one JPEG on
// stdout and then stalls, like a live camera with no more frames.
func stubDecoder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	jpg := filepath.Join(dir, "frame.jpg")
	require.NoError(t, os.WriteFile(jpg, jpegPayload(t, 6, 4), 0o644))

	script := filepath.Join(dir, "decoder.sh")
	require.NoError(t, os.WriteFile(script,
		[]byte("#!/bin/sh\ncat \""+jpg+"\"\nsleep 60\n"), 0o755))
	return script
}

func TestFFmpegOriginCancelUnblocksRead(t *testing.T) {
	t.Parallel()

	o := NewVideoFileOrigin("unused.mp4")
	o.binary = stubDecoder(t)
	require.NoError(t, o.Open(context.Background()))
	defer o.Close()

	img, err := o.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 6, 4), img.Bounds())

	// The pipe now stalls; cancellation must interrupt the blocked read
	// instead of waiting out the decoder.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = o.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExtractJPEGSplitsPipe(t *testing.T) {
	t.Parallel()

	a := jpegPayload(t, 4, 4)
	b := jpegPayload(t, 8, 6)
	buf := append(append([]byte{}, a...), b...)

	first := extractJPEG(&buf)
	require.NotNil(t, first)
	assert.Equal(t, a, first)

	second := extractJPEG(&buf)
	require.NotNil(t, second)
	assert.Equal(t, b, second)

	assert.Nil(t, extractJPEG(&buf))
}

package output

import (
	"bytes"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEncoder stands in for ffmpeg: it copies stdin into its last
// argument, which is where the encoder command puts the output path.
func stubEncoder(t *testing.T) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "encoder.sh")
	require.NoError(t, os.WriteFile(script,
		[]byte("#!/bin/sh\nfor out; do :; done\ncat > \"$out\"\n"), 0o755))
	return script
}

func TestVideoSinkFeedsEncoder(t *testing.T) {
	prev := videoEncoder
	videoEncoder = stubEncoder(t)
	defer func() { videoEncoder = prev }()

	path := filepath.Join(t.TempDir(), "annotated_run.mp4")
	sink, err := NewVideoSink(path, 30)
	require.NoError(t, err)
	assert.Equal(t, path, sink.Path())

	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	require.NoError(t, sink.WriteFrame(0, img))
	require.NoError(t, sink.WriteFrame(1, img))
	require.NoError(t, sink.Close())

	// Two JPEG payloads went down the pipe, back to back.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte{0xFF, 0xD8, 0xFF}))

	// Writes after Close are rejected rather than panicking on the pipe.
	assert.Error(t, sink.WriteFrame(2, img))
}

func TestTeeFansOutAndClosesAll(t *testing.T) {
	t.Parallel()

	dirA := t.TempDir()
	dirB := t.TempDir()
	a, err := NewDirSink(dirA)
	require.NoError(t, err)
	b, err := NewDirSink(dirB)
	require.NoError(t, err)

	tee := Tee{a, b}
	require.NoError(t, tee.WriteFrame(7, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	require.NoError(t, tee.Close())

	assert.FileExists(t, filepath.Join(dirA, "frame_000007.jpg"))
	assert.FileExists(t, filepath.Join(dirB, "frame_000007.jpg"))
}

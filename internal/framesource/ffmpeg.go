package framesource

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegOrigin decodes a video file or a V4L2 camera device through an
// external ffmpeg process emitting an MJPEG pipe on stdout. Codec handling
// stays outside this repository; we only split the pipe into JPEG
// payloads.
type FFmpegOrigin struct {
	target string
	device bool // V4L2 device rather than a file
	finite bool
	binary string // overrides "ffmpeg" in tests

	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
}

// NewVideoFileOrigin decodes the frames of a video file.
func NewVideoFileOrigin(path string) *FFmpegOrigin {
	return &FFmpegOrigin{target: path, finite: true}
}

// NewCameraOrigin captures from a local camera device index.
func NewCameraOrigin(index int) *FFmpegOrigin {
	return &FFmpegOrigin{target: "/dev/video" + strconv.Itoa(index), device: true}
}

func (o *FFmpegOrigin) Finite() bool { return o.finite }

func (o *FFmpegOrigin) Open(ctx context.Context) error {
	var args []string
	if o.device {
		args = []string{
			"-f", "v4l2",
			"-i", o.target,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		}
	} else {
		args = []string{
			"-i", o.target,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		}
	}

	bin := o.binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.Command(bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg origin: start: %w", err)
	}

	// Drain stderr so ffmpeg never blocks on a full pipe.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	o.cmd = cmd
	o.stdout = stdout
	o.buf = o.buf[:0]
	return nil
}

// ReadFrame returns the next JPEG payload from the pipe, decoded.
func (o *FFmpegOrigin) ReadFrame(ctx context.Context) (image.Image, error) {
	data, err := o.nextJPEG(ctx)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// SkipFrame discards the next JPEG payload without decoding it.
func (o *FFmpegOrigin) SkipFrame(ctx context.Context) error {
	_, err := o.nextJPEG(ctx)
	return err
}

// nextJPEG scans the pipe for the next FFD8..FFD9 delimited payload.
func (o *FFmpegOrigin) nextJPEG(ctx context.Context) ([]byte, error) {
	if o.stdout == nil {
		return nil, fmt.Errorf("ffmpeg origin: not open")
	}
	chunk := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if frame := extractJPEG(&o.buf); frame != nil {
			return frame, nil
		}
		n, err := o.read(ctx, chunk)
		if n > 0 {
			o.buf = append(o.buf, chunk[:n]...)
			continue
		}
		if err != nil {
			if err == io.EOF || strings.Contains(err.Error(), "file already closed") {
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// read runs one pipe read, tearing the process down if ctx fires while it
// blocks so cancellation never waits on ffmpeg.
func (o *FFmpegOrigin) read(ctx context.Context, p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	stdout := o.stdout
	done := make(chan result, 1)
	go func() {
		n, err := stdout.Read(p)
		done <- result{n, err}
	}()

	select {
	case r := <-done:
		return r.n, r.err
	case <-ctx.Done():
		_ = o.Close()
		<-done
		return 0, ctx.Err()
	}
}

// extractJPEG pulls one complete FFD8..FFD9 payload out of buf, consuming
// it, or returns nil if none is complete yet.
func extractJPEG(buf *[]byte) []byte {
	b := *buf
	start := -1
	for i := 0; i+1 < len(b); i++ {
		if b[i] == 0xFF && b[i+1] == 0xD8 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	for i := start + 2; i+1 < len(b); i++ {
		if b[i] == 0xFF && b[i+1] == 0xD9 {
			end := i + 2
			frame := make([]byte, end-start)
			copy(frame, b[start:end])
			*buf = b[end:]
			return frame
		}
	}
	return nil
}

func (o *FFmpegOrigin) Close() error {
	if o.stdout != nil {
		o.stdout.Close()
		o.stdout = nil
	}
	if o.cmd != nil {
		if o.cmd.Process != nil {
			_ = o.cmd.Process.Kill()
		}
		_ = o.cmd.Wait()
		o.cmd = nil
	}
	return nil
}

package output

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
)

// videoEncoder is the encoder binary name; tests substitute a stub.
var videoEncoder = "ffmpeg"

// VideoSink encodes annotated frames into a single video file through an
// external ffmpeg process fed MJPEG on stdin. The mirror image of the
// decode side: codec handling stays outside this repository.
type VideoSink struct {
	path  string
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewVideoSink starts the encoder writing to path at the given frame
// rate. fps <= 0 selects 30.
func NewVideoSink(path string, fps float64) (*VideoSink, error) {
	if fps <= 0 {
		fps = 30
	}
	cmd := exec.Command(videoEncoder,
		"-y",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		path,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("output: start video encoder: %w", err)
	}
	return &VideoSink{path: path, cmd: cmd, stdin: stdin}, nil
}

// WriteFrame appends one frame to the encoder's MJPEG stdin.
func (s *VideoSink) WriteFrame(index int64, img image.Image) error {
	if s.stdin == nil {
		return fmt.Errorf("output: video sink closed")
	}
	if err := jpeg.Encode(s.stdin, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("output: encode frame %d for video: %w", index, err)
	}
	return nil
}

// Close ends the MJPEG stream and waits for the encoder to finish the
// container.
func (s *VideoSink) Close() error {
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil {
		err := s.cmd.Wait()
		s.cmd = nil
		if err != nil {
			return fmt.Errorf("output: video encoder: %w", err)
		}
	}
	return nil
}

// Path returns the video file path.
func (s *VideoSink) Path() string { return s.path }

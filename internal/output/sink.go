package output

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/agrovision/weedscan/internal/timeline"
)

const jpegQuality = 85

// FrameSink consumes rendered annotated frames. Implementations own the
// target artifact (frame directory, video encoder, live preview).
type FrameSink interface {
	WriteFrame(index int64, img image.Image) error
	Close() error
}

// DirSink writes each annotated frame as a numbered JPEG in a directory.
type DirSink struct {
	dir string
}

func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("output: create frame dir: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

func (s *DirSink) WriteFrame(index int64, img image.Image) error {
	path := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.jpg", index))
	return writeJPEG(path, img)
}

func (s *DirSink) Close() error { return nil }

// Tee fans frames out to several sinks, e.g. a video encoder plus a
// frame directory. Close closes every sink even if one fails.
type Tee []FrameSink

func (t Tee) WriteFrame(index int64, img image.Image) error {
	for _, s := range t {
		if err := s.WriteFrame(index, img); err != nil {
			return err
		}
	}
	return nil
}

func (t Tee) Close() error {
	var first error
	for _, s := range t {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WriteKeyframes exports the selected keyframes as JPEGs named by rank
// and frame index, e.g. keyframe_01_frame42.jpg.
func WriteKeyframes(dir string, keyframes []timeline.Keyframe) error {
	if len(keyframes) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output: create keyframe dir: %w", err)
	}
	for i, kf := range keyframes {
		if kf.Image == nil {
			continue
		}
		name := fmt.Sprintf("keyframe_%02d_frame%d.jpg", i+1, kf.Entry.FrameIndex)
		if err := writeJPEG(filepath.Join(dir, name), kf.Image); err != nil {
			return err
		}
	}
	return nil
}

func writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("output: encode %s: %w", filepath.Base(path), err)
	}
	return nil
}

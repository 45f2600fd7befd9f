package framesource

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImageDirOrigin walks a directory of still images in name order,
// presenting each as one frame. It is the still-image processing mode:
// the same pipeline runs over photos instead of video.
type ImageDirOrigin struct {
	dir   string
	files []string
	pos   int
}

var stillExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
}

// NewImageDirOrigin builds an origin over the stills in dir.
func NewImageDirOrigin(dir string) *ImageDirOrigin {
	return &ImageDirOrigin{dir: dir}
}

func (o *ImageDirOrigin) Finite() bool { return true }

func (o *ImageDirOrigin) Open(ctx context.Context) error {
	entries, err := os.ReadDir(o.dir)
	if err != nil {
		return err
	}
	o.files = o.files[:0]
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if stillExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			o.files = append(o.files, filepath.Join(o.dir, entry.Name()))
		}
	}
	sort.Strings(o.files)
	if len(o.files) == 0 {
		return fmt.Errorf("image dir: no images in %s", o.dir)
	}
	o.pos = 0
	return nil
}

func (o *ImageDirOrigin) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.pos >= len(o.files) {
		return nil, io.EOF
	}
	path := o.files[o.pos]
	o.pos++

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Index: int64(o.pos - 1), Err: fmt.Errorf("%s: %w", path, err)}
	}
	return img, nil
}

// SkipFrame advances past one image without decoding it.
func (o *ImageDirOrigin) SkipFrame(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.pos >= len(o.files) {
		return io.EOF
	}
	o.pos++
	return nil
}

func (o *ImageDirOrigin) Close() error { return nil }

// Len returns the number of images found by Open.
func (o *ImageDirOrigin) Len() int64 { return int64(len(o.files)) }

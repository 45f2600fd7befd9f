package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRGBToHSVPrimaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		r, g, b uint8
		want    HSV
	}{
		{"black", 0, 0, 0, HSV{0, 0, 0}},
		{"white", 255, 255, 255, HSV{0, 0, 255}},
		{"red", 255, 0, 0, HSV{0, 255, 255}},
		{"green", 0, 255, 0, HSV{60, 255, 255}},
		{"blue", 0, 0, 255, HSV{120, 255, 255}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RGBToHSV(tc.r, tc.g, tc.b))
		})
	}
}

func TestInRangeInclusive(t *testing.T) {
	t.Parallel()

	lower := HSV{35, 40, 40}
	upper := HSV{85, 255, 255}

	assert.True(t, HSV{35, 40, 40}.InRange(lower, upper))
	assert.True(t, HSV{85, 255, 255}.InRange(lower, upper))
	assert.True(t, HSV{60, 255, 255}.InRange(lower, upper))
	assert.False(t, HSV{34, 255, 255}.InRange(lower, upper))
	assert.False(t, HSV{86, 255, 255}.InRange(lower, upper))
	assert.False(t, HSV{60, 39, 255}.InRange(lower, upper))
}

func greenPatchImage(w, h int, patch image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	brown := color.RGBA{120, 80, 40, 255}
	green := color.RGBA{40, 200, 40, 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if image.Pt(x, y).In(patch) {
				img.SetRGBA(x, y, green)
			} else {
				img.SetRGBA(x, y, brown)
			}
		}
	}
	return img
}

func TestSegmentMaskSelectsGreen(t *testing.T) {
	t.Parallel()

	patch := image.Rect(10, 10, 30, 20)
	img := greenPatchImage(64, 48, patch)

	m := SegmentMask(img, HSV{35, 40, 40}, HSV{85, 255, 255})

	assert.Equal(t, patch.Dx()*patch.Dy(), m.Count())
	assert.True(t, m.At(10, 10))
	assert.True(t, m.At(29, 19))
	assert.False(t, m.At(9, 10))
	assert.False(t, m.At(30, 19))
}

func TestOpenClosePreserveRectangle(t *testing.T) {
	t.Parallel()

	// A 20x10 rectangle away from the border survives a 5x5 opening and
	// closing exactly.
	m := NewMask(64, 48)
	for y := 10; y < 20; y++ {
		for x := 10; x < 30; x++ {
			m.Set(x, y, true)
		}
	}

	opened := Open(m, 5)
	assert.Equal(t, 200, opened.Count())
	closed := Close(opened, 5)
	assert.Equal(t, 200, closed.Count())
}

func TestOpenRemovesSpeckle(t *testing.T) {
	t.Parallel()

	m := NewMask(32, 32)
	m.Set(5, 5, true)
	m.Set(20, 20, true)
	m.Set(21, 20, true)

	opened := Open(m, 5)
	assert.Equal(t, 0, opened.Count())
}

func TestCloseFillsHole(t *testing.T) {
	t.Parallel()

	m := NewMask(32, 32)
	for y := 5; y < 15; y++ {
		for x := 5; x < 25; x++ {
			m.Set(x, y, true)
		}
	}
	m.Set(10, 10, false)

	closed := Close(m, 5)
	assert.True(t, closed.At(10, 10))
	assert.Equal(t, 200, closed.Count())
}

func TestConnectedRegions(t *testing.T) {
	t.Parallel()

	m := NewMask(40, 40)
	// Region A: 4x4 square at (2,2).
	for y := 2; y < 6; y++ {
		for x := 2; x < 6; x++ {
			m.Set(x, y, true)
		}
	}
	// Region B: 3x3 square at (20,10).
	for y := 10; y < 13; y++ {
		for x := 20; x < 23; x++ {
			m.Set(x, y, true)
		}
	}

	regions := ConnectedRegions(m)
	require.Len(t, regions, 2)

	// Raster discovery order: A first (smaller y).
	a, b := regions[0], regions[1]
	assert.Equal(t, image.Rect(2, 2, 6, 6), a.BBox)
	assert.Equal(t, 16, a.Area)
	assert.Equal(t, image.Pt(3, 3), a.Centroid)

	assert.Equal(t, image.Rect(20, 10, 23, 13), b.BBox)
	assert.Equal(t, 9, b.Area)
}

func TestConnectedRegionsDiagonalIsOneRegion(t *testing.T) {
	t.Parallel()

	// 8-connectivity joins diagonal neighbors.
	m := NewMask(10, 10)
	m.Set(2, 2, true)
	m.Set(3, 3, true)
	m.Set(4, 4, true)

	regions := ConnectedRegions(m)
	require.Len(t, regions, 1)
	assert.Equal(t, 3, regions[0].Area)
}

func TestRegionPerimeterOfRectangle(t *testing.T) {
	t.Parallel()

	m := NewMask(40, 40)
	for y := 10; y < 20; y++ {
		for x := 10; x < 30; x++ {
			m.Set(x, y, true)
		}
	}

	regions := ConnectedRegions(m)
	require.Len(t, regions, 1)
	// Boundary pixel count of a 20x10 rectangle.
	assert.Equal(t, 56.0, regions[0].Perimeter)
}

package vision

import "image"

// Mask is a binary foreground mask over a frame.
type Mask struct {
	W, H int
	Pix  []uint8 // 1 = foreground, row-major
}

// NewMask returns an all-background mask of the given size.
func NewMask(w, h int) *Mask {
	return &Mask{W: w, H: h, Pix: make([]uint8, w*h)}
}

// At reports whether (x, y) is foreground. Out-of-bounds is background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.Pix[y*m.W+x] != 0
}

// Set marks (x, y) as foreground or background.
func (m *Mask) Set(x, y int, fg bool) {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return
	}
	if fg {
		m.Pix[y*m.W+x] = 1
	} else {
		m.Pix[y*m.W+x] = 0
	}
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, p := range m.Pix {
		if p != 0 {
			n++
		}
	}
	return n
}

// SegmentMask maps every pixel of img to HSV and marks it foreground iff it
// lies within [lower, upper] on all channels.
func SegmentMask(img image.Image, lower, upper HSV) *Mask {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	mask := NewMask(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := PixelHSV(img, bounds.Min.X+x, bounds.Min.Y+y)
			if p.InRange(lower, upper) {
				mask.Pix[y*w+x] = 1
			}
		}
	}
	return mask
}

// erode shrinks foreground by one square structuring element of size k.
func erode(m *Mask, k int) *Mask {
	r := k / 2
	out := NewMask(m.W, m.H)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !m.At(x, y) {
				continue
			}
			keep := true
			for dy := -r; dy <= r && keep; dy++ {
				for dx := -r; dx <= r; dx++ {
					if !m.At(x+dx, y+dy) {
						keep = false
						break
					}
				}
			}
			if keep {
				out.Pix[y*m.W+x] = 1
			}
		}
	}
	return out
}

// dilate grows foreground by one square structuring element of size k.
func dilate(m *Mask, k int) *Mask {
	r := k / 2
	out := NewMask(m.W, m.H)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !m.At(x, y) {
				continue
			}
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					out.Set(x+dx, y+dy, true)
				}
			}
		}
	}
	return out
}

// Open removes specks smaller than the structuring element (erode, dilate).
func Open(m *Mask, k int) *Mask {
	return dilate(erode(m, k), k)
}

// Close fills gaps smaller than the structuring element (dilate, erode).
func Close(m *Mask, k int) *Mask {
	return erode(dilate(m, k), k)
}

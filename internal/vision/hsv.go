// Package vision provides the pixel-level primitives consumed by the
// detector: HSV color conversion, in-range mask segmentation, morphological
// cleanup and connected-region extraction.
package vision

import "image"

// HSV is one hue/saturation/value triple. Hue uses the 0-179 convention
// (degrees halved) so a full config range fits in a byte.
type HSV struct {
	H, S, V uint8
}

// RGBToHSV converts an 8-bit RGB pixel to HSV with hue in [0,179] and
// saturation/value in [0,255].
func RGBToHSV(r, g, b uint8) HSV {
	maxC := r
	if g > maxC {
		maxC = g
	}
	if b > maxC {
		maxC = b
	}
	minC := r
	if g < minC {
		minC = g
	}
	if b < minC {
		minC = b
	}

	v := maxC
	delta := int(maxC) - int(minC)

	var s uint8
	if maxC > 0 {
		s = uint8((255*delta + int(maxC)/2) / int(maxC))
	}

	var hueDeg int
	if delta > 0 {
		switch maxC {
		case r:
			hueDeg = (60 * (int(g) - int(b))) / delta
		case g:
			hueDeg = 120 + (60*(int(b)-int(r)))/delta
		default:
			hueDeg = 240 + (60*(int(r)-int(g)))/delta
		}
		if hueDeg < 0 {
			hueDeg += 360
		}
	}

	return HSV{H: uint8(hueDeg / 2), S: s, V: v}
}

// PixelHSV reads one pixel of img and converts it to HSV.
func PixelHSV(img image.Image, x, y int) HSV {
	r, g, b, _ := img.At(x, y).RGBA()
	return RGBToHSV(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// InRange reports whether p lies within [lower, upper] on all three
// channels, bounds inclusive. Hue does not wrap.
func (p HSV) InRange(lower, upper HSV) bool {
	return p.H >= lower.H && p.H <= upper.H &&
		p.S >= lower.S && p.S <= upper.S &&
		p.V >= lower.V && p.V <= upper.V
}

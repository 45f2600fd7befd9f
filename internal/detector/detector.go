// Package detector turns a raw frame plus a detection configuration into an
// ordered set of detections. Detection is a pure function: no temporal
// state, no side effects, identical output for identical input.
package detector

import (
	"math"

	"github.com/agrovision/weedscan/internal/config"
	"github.com/agrovision/weedscan/internal/vision"
	"github.com/agrovision/weedscan/pkg/types"
)

// Structuring element size for the mask cleanup pass.
const morphKernel = 5

// Detector applies one immutable configuration to frames.
type Detector struct {
	lower, upper vision.HSV
	minArea      int
	maxArea      int
}

// New builds a Detector from cfg. The configuration is captured by value;
// later config reloads never affect an existing Detector.
func New(cfg config.Config) *Detector {
	return &Detector{
		lower:   vision.HSV{H: uint8(cfg.LowerGreen.H), S: uint8(cfg.LowerGreen.S), V: uint8(cfg.LowerGreen.V)},
		upper:   vision.HSV{H: uint8(cfg.UpperGreen.H), S: uint8(cfg.UpperGreen.S), V: uint8(cfg.UpperGreen.V)},
		minArea: cfg.MinArea,
		maxArea: cfg.MaxArea,
	}
}

// Detect segments frame, extracts connected green regions, filters them by
// area and derives the per-detection shape features. IDs are assigned
// sequentially from 0 in region discovery order.
func (d *Detector) Detect(frame types.Frame) []types.Detection {
	mask := vision.SegmentMask(frame.Image, d.lower, d.upper)
	mask = vision.Open(mask, morphKernel)
	mask = vision.Close(mask, morphKernel)

	regions := vision.ConnectedRegions(mask)

	detections := make([]types.Detection, 0, len(regions))
	for _, region := range regions {
		if region.Area < d.minArea || region.Area > d.maxArea {
			continue
		}

		circularity := 0.0
		if region.Perimeter > 0 {
			circularity = 4 * math.Pi * float64(region.Area) / (region.Perimeter * region.Perimeter)
			if circularity > 1 {
				circularity = 1
			}
		}

		aspect := 0.0
		if h := region.BBox.Dy(); h > 0 {
			aspect = float64(region.BBox.Dx()) / float64(h)
		}

		detections = append(detections, types.Detection{
			ID:          len(detections),
			Centroid:    region.Centroid,
			BBox:        region.BBox,
			Area:        region.Area,
			Circularity: circularity,
			AspectRatio: aspect,
		})
	}

	return detections
}

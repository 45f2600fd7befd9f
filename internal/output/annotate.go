package output

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/agrovision/weedscan/pkg/types"
)

var (
	boxColor      = color.RGBA{0, 255, 0, 255}
	centroidColor = color.RGBA{255, 0, 0, 255}
	textColor     = color.RGBA{255, 255, 255, 255}
	barBackColor  = color.RGBA{60, 60, 60, 255}
	barFillColor  = color.RGBA{0, 200, 0, 255}
)

// Overlay carries the run-level data drawn on top of each frame.
type Overlay struct {
	// Progress in [0,1]; negative means unknown (live source) and
	// suppresses the progress bar.
	Progress float64
	// RunningWeeds is the total detection count so far.
	RunningWeeds int64
}

// Annotate renders detections and the run overlay onto a copy of the
// frame. The input image is never modified.
func Annotate(frame types.Frame, detections []types.Detection, overlay Overlay) *image.RGBA {
	bounds := frame.Image.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, frame.Image, bounds.Min, draw.Src)

	for _, d := range detections {
		drawRectOutline(out, d.BBox, boxColor, 2)
		drawDot(out, d.Centroid, 3, centroidColor)
		drawText(out, d.BBox.Min.X, d.BBox.Min.Y-4,
			fmt.Sprintf("W%d: %dpx", d.ID, d.Area), boxColor)
	}

	lineHeight := basicfont.Face7x13.Height + 4
	drawText(out, 10, bounds.Min.Y+lineHeight,
		fmt.Sprintf("Time: %s", FormatTimestamp(frame.Timestamp)), textColor)
	drawText(out, 10, bounds.Min.Y+2*lineHeight,
		fmt.Sprintf("Frame: %d", frame.Index), textColor)
	drawText(out, 10, bounds.Min.Y+3*lineHeight,
		fmt.Sprintf("Weeds: %d (total %d)", len(detections), overlay.RunningWeeds), textColor)

	if overlay.Progress >= 0 {
		drawProgressBar(out, clamp01(overlay.Progress))
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func drawRectOutline(img *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			setPixel(img, x, r.Min.Y+t, c)
			setPixel(img, x, r.Max.Y-1-t, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			setPixel(img, r.Min.X+t, y, c)
			setPixel(img, r.Max.X-1-t, y, c)
		}
	}
}

func drawDot(img *image.RGBA, p image.Point, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				setPixel(img, p.X+dx, p.Y+dy, c)
			}
		}
	}
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func drawText(img *image.RGBA, x, y int, s string, c color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawProgressBar(img *image.RGBA, progress float64) {
	bounds := img.Bounds()
	const height, margin = 6, 10
	barRect := image.Rect(
		bounds.Min.X+margin, bounds.Max.Y-margin-height,
		bounds.Max.X-margin, bounds.Max.Y-margin,
	)
	if barRect.Empty() {
		return
	}
	draw.Draw(img, barRect, image.NewUniform(barBackColor), image.Point{}, draw.Src)
	fillWidth := int(float64(barRect.Dx()) * progress)
	fillRect := image.Rect(barRect.Min.X, barRect.Min.Y, barRect.Min.X+fillWidth, barRect.Max.Y)
	draw.Draw(img, fillRect, image.NewUniform(barFillColor), image.Point{}, draw.Src)
}

package types

import (
	"fmt"
	"image"
)

// Frame is one decoded image from a video, camera or image source.
type Frame struct {
	Image     image.Image // Decoded pixel buffer
	Index     int64       // True frame number in the underlying origin
	Timestamp float64     // Seconds since the source was opened
}

// Detection is one filtered connected green region within a single frame.
// IDs are sequential within their frame only; they carry no identity
// across frames.
type Detection struct {
	ID          int
	Centroid    image.Point
	BBox        image.Rectangle
	Area        int
	Circularity float64
	AspectRatio float64
}

// TimelineEntry records the detections of one processed frame.
type TimelineEntry struct {
	FrameIndex int64
	Timestamp  float64
	Detections []Detection
}

// WeedCount returns the number of detections in the entry.
func (e TimelineEntry) WeedCount() int {
	return len(e.Detections)
}

// CandidateEndpoint is one verified network stream endpoint found during
// discovery.
type CandidateEndpoint struct {
	Host string
	Port int
	Path string
}

// URL renders the endpoint as an HTTP stream URL.
func (c CandidateEndpoint) URL() string {
	return fmt.Sprintf("http://%s:%d%s", c.Host, c.Port, c.Path)
}

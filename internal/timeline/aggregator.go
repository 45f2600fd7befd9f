// Package timeline aggregates per-frame detection results into an ordered
// timeline, running statistics and a bounded keyframe selection.
package timeline

import (
	"fmt"
	"image"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/agrovision/weedscan/pkg/types"
)

// OutOfOrderError reports a frame observed with a non-increasing index.
type OutOfOrderError struct {
	Index     int64
	LastIndex int64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("timeline: frame %d observed after frame %d", e.Index, e.LastIndex)
}

// Keyframe couples a timeline entry with the frame's pixel data, retained
// only for the current top candidates.
type Keyframe struct {
	Entry types.TimelineEntry
	Image image.Image
}

// Summary is the whole-run roll-up produced by Finalize.
type Summary struct {
	FramesObserved  int64
	FramesWithWeeds int64
	// Coverage is the fraction of observed frames with at least one
	// detection.
	Coverage        float64
	TotalDetections int64
	// CountStats covers per-frame weed counts, AreaStats per-detection
	// areas in pixels.
	CountStats RunningStats
	AreaStats  RunningStats
	MeanArea   float64
	StdDevArea float64
	// Duration is the timestamp of the last observed frame, seconds.
	Duration float64
}

// Aggregator collects detection results frame by frame. Observe enforces
// strictly increasing frame indices; Finalize may be called once the
// stream is exhausted. Safe for concurrent use.
type Aggregator struct {
	mu        sync.Mutex
	entries   []types.TimelineEntry
	lastIndex int64
	keyframes *topK

	framesWithWeeds int64
	countStats      RunningStats
	areaStats       RunningStats
	areas           []float64
	duration        float64
}

// New returns an aggregator retaining at most keyframeTarget keyframes
// with pixel data.
func New(keyframeTarget int) *Aggregator {
	return &Aggregator{
		lastIndex: -1,
		keyframes: newTopK(keyframeTarget),
	}
}

// Observe records one processed frame. Frames must arrive in strictly
// increasing index order; a stale or duplicate index is rejected without
// mutating any state.
func (a *Aggregator) Observe(frame types.Frame, detections []types.Detection) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if frame.Index <= a.lastIndex {
		return &OutOfOrderError{Index: frame.Index, LastIndex: a.lastIndex}
	}
	a.lastIndex = frame.Index

	entry := types.TimelineEntry{
		FrameIndex: frame.Index,
		Timestamp:  frame.Timestamp,
		Detections: detections,
	}
	a.entries = append(a.entries, entry)

	a.countStats.Add(float64(len(detections)))
	if len(detections) > 0 {
		a.framesWithWeeds++
	}
	for _, d := range detections {
		a.areaStats.Add(float64(d.Area))
		a.areas = append(a.areas, float64(d.Area))
	}
	if frame.Timestamp > a.duration {
		a.duration = frame.Timestamp
	}

	a.keyframes.offer(Keyframe{Entry: entry, Image: frame.Image})
	return nil
}

// Entries returns the timeline observed so far, in frame order.
func (a *Aggregator) Entries() []types.TimelineEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.TimelineEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Finalize computes the run summary and releases the retained keyframes,
// ordered by frame index.
func (a *Aggregator) Finalize() (Summary, []Keyframe) {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := Summary{
		FramesObserved:  int64(len(a.entries)),
		FramesWithWeeds: a.framesWithWeeds,
		TotalDetections: a.areaStats.Count,
		CountStats:      a.countStats,
		AreaStats:       a.areaStats,
		Duration:        a.duration,
	}
	if summary.FramesObserved > 0 {
		summary.Coverage = float64(a.framesWithWeeds) / float64(summary.FramesObserved)
	}
	if len(a.areas) > 0 {
		summary.MeanArea = stat.Mean(a.areas, nil)
		if len(a.areas) > 1 {
			summary.StdDevArea = stat.StdDev(a.areas, nil)
		}
	}
	return summary, a.keyframes.drain()
}

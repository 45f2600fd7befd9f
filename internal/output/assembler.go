// Package output renders annotated frames and serializes the finished
// timeline to its external formats (JSON, CSV, keyframe JPEGs, HTML
// report).
package output

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/agrovision/weedscan/internal/logger"
	"github.com/agrovision/weedscan/internal/timeline"
	"github.com/agrovision/weedscan/pkg/types"
)

// Assembler owns the output directory for one run. RenderFrame is called
// per processed frame; Flush writes the end-of-run artifacts. Flush with
// partial data is always valid, so a failed run still keeps its progress.
type Assembler struct {
	dir  string
	name string
	sink FrameSink
}

// New prepares the output directory. name is the artifact base name
// (source file stem, or e.g. "live"). sink may be nil to skip per-frame
// output.
func New(dir, name string, sink FrameSink) (*Assembler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("output: create output dir: %w", err)
	}
	return &Assembler{dir: dir, name: name, sink: sink}, nil
}

// RenderFrame draws detections and the overlay onto the frame and hands
// the result to the sink, if any. The annotated image is returned for
// live preview use.
func (a *Assembler) RenderFrame(frame types.Frame, detections []types.Detection, overlay Overlay) (*image.RGBA, error) {
	annotated := Annotate(frame, detections, overlay)
	if a.sink != nil {
		if err := a.sink.WriteFrame(frame.Index, annotated); err != nil {
			return annotated, err
		}
	}
	return annotated, nil
}

// Flush writes the timeline JSON, CSV summary, keyframe images and HTML
// report, then closes the frame sink. Safe to call with whatever has
// been accumulated when a run ends early.
func (a *Assembler) Flush(entries []types.TimelineEntry, summary timeline.Summary, keyframes []timeline.Keyframe) error {
	jsonPath := filepath.Join(a.dir, fmt.Sprintf("timeline_%s.json", a.name))
	if err := WriteTimelineJSON(jsonPath, a.name, entries, summary); err != nil {
		return err
	}
	csvPath := filepath.Join(a.dir, fmt.Sprintf("summary_%s.csv", a.name))
	if err := WriteTimelineCSV(csvPath, entries); err != nil {
		return err
	}
	if err := WriteKeyframes(filepath.Join(a.dir, "keyframes"), keyframes); err != nil {
		return err
	}
	reportPath := filepath.Join(a.dir, fmt.Sprintf("report_%s.html", a.name))
	if err := WriteReport(reportPath, a.name, entries, summary); err != nil {
		return err
	}

	logger.Info("Output", "wrote %d timeline entries and %d keyframe(s) to %s",
		len(entries), len(keyframes), a.dir)

	if a.sink != nil {
		return a.sink.Close()
	}
	return nil
}

// Dir returns the run's output directory.
func (a *Assembler) Dir() string { return a.dir }

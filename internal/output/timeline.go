package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/agrovision/weedscan/internal/timeline"
	"github.com/agrovision/weedscan/pkg/types"
)

// FormatTimestamp renders seconds as H:MM:SS.
func FormatTimestamp(sec float64) string {
	total := int(sec)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

type timelineFile struct {
	Source      string         `json:"source"`
	GeneratedAt string         `json:"generated_at"`
	Summary     summaryRecord  `json:"summary"`
	Timeline    []summaryFrame `json:"timeline"`
}

type summaryRecord struct {
	FramesProcessed int64   `json:"frames_processed"`
	FramesWithWeeds int64   `json:"frames_with_weeds"`
	Coverage        float64 `json:"coverage"`
	TotalDetections int64   `json:"total_detections"`
	MaxWeedCount    int64   `json:"max_weed_count"`
	MeanArea        float64 `json:"mean_area"`
	StdDevArea      float64 `json:"stddev_area"`
	DurationSec     float64 `json:"duration_sec"`
}

type summaryFrame struct {
	Frame        int64             `json:"frame"`
	Timestamp    string            `json:"timestamp"`
	TimestampSec float64           `json:"timestamp_sec"`
	WeedCount    int               `json:"weed_count"`
	Detections   []detectionRecord `json:"detections"`
}

type detectionRecord struct {
	ID          int     `json:"id"`
	Centroid    [2]int  `json:"centroid"`
	BBox        [4]int  `json:"bbox"`
	Area        int     `json:"area"`
	Circularity float64 `json:"circularity"`
	AspectRatio float64 `json:"aspect_ratio"`
}

func newSummaryRecord(summary timeline.Summary) summaryRecord {
	return summaryRecord{
		FramesProcessed: summary.FramesObserved,
		FramesWithWeeds: summary.FramesWithWeeds,
		Coverage:        summary.Coverage,
		TotalDetections: summary.TotalDetections,
		MaxWeedCount:    int64(summary.CountStats.Max),
		MeanArea:        summary.MeanArea,
		StdDevArea:      summary.StdDevArea,
		DurationSec:     summary.Duration,
	}
}

func newSummaryFrame(entry types.TimelineEntry) summaryFrame {
	frame := summaryFrame{
		Frame:        entry.FrameIndex,
		Timestamp:    FormatTimestamp(entry.Timestamp),
		TimestampSec: entry.Timestamp,
		WeedCount:    entry.WeedCount(),
		Detections:   make([]detectionRecord, 0, len(entry.Detections)),
	}
	for _, d := range entry.Detections {
		frame.Detections = append(frame.Detections, detectionRecord{
			ID:          d.ID,
			Centroid:    [2]int{d.Centroid.X, d.Centroid.Y},
			BBox:        [4]int{d.BBox.Min.X, d.BBox.Min.Y, d.BBox.Dx(), d.BBox.Dy()},
			Area:        d.Area,
			Circularity: d.Circularity,
			AspectRatio: d.AspectRatio,
		})
	}
	return frame
}

// WriteTimelineJSON serializes the full timeline plus run summary to path.
func WriteTimelineJSON(path, source string, entries []types.TimelineEntry, summary timeline.Summary) error {
	file := timelineFile{
		Source:      source,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Summary:     newSummaryRecord(summary),
		Timeline:    make([]summaryFrame, 0, len(entries)),
	}
	for _, entry := range entries {
		file.Timeline = append(file.Timeline, newSummaryFrame(entry))
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("output: marshal timeline: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("output: write timeline: %w", err)
	}
	return nil
}

var csvHeader = []string{"frame", "timestamp", "timestamp_sec", "weed_count", "avg_area", "min_area", "max_area"}

// WriteTimelineCSV writes one row per processed frame. Frames with no
// detections carry zero area columns.
func WriteTimelineCSV(path string, entries []types.TimelineEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("output: write csv header: %w", err)
	}
	for _, entry := range entries {
		var areas timeline.RunningStats
		for _, d := range entry.Detections {
			areas.Add(float64(d.Area))
		}
		row := []string{
			strconv.FormatInt(entry.FrameIndex, 10),
			FormatTimestamp(entry.Timestamp),
			strconv.FormatFloat(entry.Timestamp, 'f', 3, 64),
			strconv.Itoa(entry.WeedCount()),
			strconv.FormatFloat(areas.Mean(), 'f', 1, 64),
			strconv.FormatFloat(areas.Min, 'f', 0, 64),
			strconv.FormatFloat(areas.Max, 'f', 0, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("output: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("output: flush csv: %w", err)
	}
	return nil
}

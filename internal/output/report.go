package output

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/agrovision/weedscan/internal/timeline"
	"github.com/agrovision/weedscan/pkg/types"
)

// WriteReport renders a standalone HTML report: weed count per frame as a
// line chart with the run summary in the subtitle.
func WriteReport(path, source string, entries []types.TimelineEntry, summary timeline.Summary) error {
	xAxis := make([]string, 0, len(entries))
	counts := make([]opts.LineData, 0, len(entries))
	for _, entry := range entries {
		xAxis = append(xAxis, FormatTimestamp(entry.Timestamp))
		counts = append(counts, opts.LineData{Value: entry.WeedCount()})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Weed Detection Report", Width: "1100px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Weed Timeline - %s", source),
			Subtitle: fmt.Sprintf("%d frames, %d detections, coverage %.1f%%, mean area %.0fpx",
				summary.FramesObserved, summary.TotalDetections, summary.Coverage*100, summary.MeanArea),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "weeds"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("weed count", counts,
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.2)}),
	)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create report: %w", err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		return fmt.Errorf("output: render report: %w", err)
	}
	return nil
}

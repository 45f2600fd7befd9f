// Package pipeline runs the sequential per-frame loop: acquire, detect,
// aggregate, render. One Pipeline drives one run.
package pipeline

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/agrovision/weedscan/internal/config"
	"github.com/agrovision/weedscan/internal/detector"
	"github.com/agrovision/weedscan/internal/framesource"
	"github.com/agrovision/weedscan/internal/logger"
	"github.com/agrovision/weedscan/internal/metrics"
	"github.com/agrovision/weedscan/internal/monitor"
	"github.com/agrovision/weedscan/internal/output"
	"github.com/agrovision/weedscan/internal/timeline"
	"github.com/agrovision/weedscan/internal/timelinedb"
	"github.com/agrovision/weedscan/pkg/types"
)

const progressLogEvery = 100

// ConfigSource supplies the freshest detection configuration; the
// hot-reload watcher satisfies it.
type ConfigSource interface {
	Latest() config.Config
}

// Pipeline wires one frame source through detection, aggregation and
// output. Monitor, Metrics and Store are optional; nil disables them.
type Pipeline struct {
	Source     *framesource.Source
	Detector   *detector.Detector
	Aggregator *timeline.Aggregator
	Assembler  *output.Assembler

	Monitor *monitor.Server
	Metrics *metrics.Metrics
	Store   *timelinedb.Store

	// Config, when set, is polled between frames; a changed value swaps
	// in a fresh detector before the next frame is processed.
	Config ConfigSource

	lastCfg config.Config

	// SourceName labels logs, status and stored runs.
	SourceName string
	// TotalFrames drives the progress overlay; <= 0 means unknown
	// (live source).
	TotalFrames int64
}

// Run executes the frame loop until the source is exhausted, the context
// is canceled, or the stream is lost. Accumulated timeline, statistics
// and keyframes are always flushed before returning, so a late failure
// never loses progress.
func (p *Pipeline) Run(ctx context.Context) (timeline.Summary, error) {
	var runID string
	if p.Store != nil {
		id, err := p.Store.BeginRun(p.SourceName)
		if err != nil {
			logger.Warn("Pipeline", "run history disabled: %v", err)
		} else {
			runID = id
			logger.Info("Pipeline", "run %s started for %s", runID, p.SourceName)
		}
	}

	if p.Config != nil {
		p.lastCfg = p.Config.Latest()
	}

	fps := newFPSCounter(30)
	var totalDetections int64
	var framesWithWeeds int64
	runErr := p.loop(ctx, runID, fps, &totalDetections, &framesWithWeeds)

	summary, keyframes := p.Aggregator.Finalize()

	if p.Metrics != nil {
		p.Metrics.KeyframesRetained.Store(uint64(len(keyframes)))
	}
	if err := p.Assembler.Flush(p.Aggregator.Entries(), summary, keyframes); err != nil {
		logger.Error("Pipeline", "flush failed: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	if p.Store != nil && runID != "" {
		if err := p.Store.FinishRun(runID, summary); err != nil {
			logger.Warn("Pipeline", "finish run record: %v", err)
		}
	}

	p.logSummary(summary, keyframes)
	return summary, runErr
}

func (p *Pipeline) loop(ctx context.Context, runID string, fps *fpsCounter, totalDetections, framesWithWeeds *int64) error {
	for {
		frame, err := p.Source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				logger.Info("Pipeline", "source exhausted after %d frame(s)", p.Source.Stats().FramesForwarded)
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, framesource.ErrClosed):
				logger.Info("Pipeline", "run canceled, flushing partial results")
				return nil
			default:
				return err
			}
		}

		if p.Config != nil {
			if cfg := p.Config.Latest(); cfg != p.lastCfg {
				p.lastCfg = cfg
				p.Detector = detector.New(cfg)
				logger.Info("Pipeline", "detection config reloaded, applying from frame %d", frame.Index)
			}
		}

		frameStart := time.Now()
		detectStart := frameStart
		detections := p.Detector.Detect(frame)
		detectDuration := time.Since(detectStart)

		if err := p.Aggregator.Observe(frame, detections); err != nil {
			// An ordering violation is a bug in the caller, not a
			// stream condition; surface it immediately.
			return err
		}

		*totalDetections += int64(len(detections))
		if len(detections) > 0 {
			*framesWithWeeds++
		}

		overlay := output.Overlay{Progress: -1, RunningWeeds: *totalDetections}
		if p.TotalFrames > 0 {
			overlay.Progress = float64(frame.Index+1) / float64(p.TotalFrames)
		}
		annotated, err := p.Assembler.RenderFrame(frame, detections, overlay)
		if err != nil {
			return err
		}

		if runID != "" {
			entry := types.TimelineEntry{
				FrameIndex: frame.Index,
				Timestamp:  frame.Timestamp,
				Detections: detections,
			}
			if err := p.Store.RecordEntry(runID, entry); err != nil {
				logger.Warn("Pipeline", "record frame %d: %v", frame.Index, err)
			}
		}

		rate := fps.Tick()
		stats := p.Source.Stats()
		processed := stats.FramesForwarded

		p.publishMetrics(stats, detectDuration, frameStart, rate, totalDetections, framesWithWeeds)
		if p.Monitor != nil {
			p.Monitor.PublishFrame(annotated)
			p.Monitor.SetStatus(monitor.Status{
				Source:          p.SourceName,
				State:           p.Source.State().String(),
				FramesRead:      uint64(stats.FramesRead),
				FramesProcessed: uint64(processed),
				Detections:      uint64(*totalDetections),
				FramesWithWeeds: uint64(*framesWithWeeds),
				Coverage:        coverage(*framesWithWeeds, processed),
				CurrentFPS:      rate,
				Reconnects:      uint64(stats.Reconnects),
				DecodeErrors:    uint64(stats.DecodeErrors),
			})
		}

		if processed%progressLogEvery == 0 {
			logger.Info("Pipeline", "processed %d frame(s), %d detection(s), %.1f fps",
				processed, *totalDetections, rate)
		}
	}
}

func (p *Pipeline) publishMetrics(stats framesource.Stats, detectDuration time.Duration, frameStart time.Time, rate float64, totalDetections, framesWithWeeds *int64) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.FramesRead.Store(uint64(stats.FramesRead))
	p.Metrics.FramesProcessed.Store(uint64(stats.FramesForwarded))
	p.Metrics.FramesSkipped.Store(uint64(stats.FramesRead - stats.FramesForwarded))
	p.Metrics.Detections.Store(uint64(*totalDetections))
	p.Metrics.FramesWithWeeds.Store(uint64(*framesWithWeeds))
	p.Metrics.DecodeErrors.Store(uint64(stats.DecodeErrors))
	p.Metrics.Reconnects.Store(uint64(stats.Reconnects))
	p.Metrics.ConnectionState.Store(uint64(p.Source.State()))
	p.Metrics.UpdateDetectLatency(detectDuration)
	p.Metrics.UpdateFrameLatency(frameStart)
	p.Metrics.UpdateFPS(rate)
}

func (p *Pipeline) logSummary(summary timeline.Summary, keyframes []timeline.Keyframe) {
	logger.Info("Pipeline", "run complete: %d frame(s) processed, %d with weeds (%.1f%% coverage)",
		summary.FramesObserved, summary.FramesWithWeeds, summary.Coverage*100)
	logger.Info("Pipeline", "detections: %d total, mean area %.0fpx (stddev %.0f), max per frame %d",
		summary.TotalDetections, summary.MeanArea, summary.StdDevArea, int64(summary.CountStats.Max))
	logger.Info("Pipeline", "keyframes retained: %d, run duration %s",
		len(keyframes), output.FormatTimestamp(summary.Duration))

	// Top frames ranked by weed count.
	ranked := make([]timeline.Keyframe, len(keyframes))
	copy(ranked, keyframes)
	sort.Slice(ranked, func(i, j int) bool {
		ci, cj := ranked[i].Entry.WeedCount(), ranked[j].Entry.WeedCount()
		if ci != cj {
			return ci > cj
		}
		return ranked[i].Entry.FrameIndex < ranked[j].Entry.FrameIndex
	})
	for rank, kf := range ranked {
		logger.Info("Pipeline", "top frame #%d: frame %d at %s with %d weed(s)",
			rank+1, kf.Entry.FrameIndex, output.FormatTimestamp(kf.Entry.Timestamp), kf.Entry.WeedCount())
	}
}

func coverage(framesWithWeeds, processed int64) float64 {
	if processed == 0 {
		return 0
	}
	return float64(framesWithWeeds) / float64(processed)
}

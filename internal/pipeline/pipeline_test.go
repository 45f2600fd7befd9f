package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrovision/weedscan/internal/config"
	"github.com/agrovision/weedscan/internal/detector"
	"github.com/agrovision/weedscan/internal/framesource"
	"github.com/agrovision/weedscan/internal/output"
	"github.com/agrovision/weedscan/internal/timeline"
	"github.com/agrovision/weedscan/internal/timelinedb"
)

// writeStills fills dir with numbered PNGs; greenAt marks frames that get
// a 20x10 green patch.
func writeStills(t *testing.T, dir string, count int, greenAt map[int]bool) {
	t.Helper()
	brown := color.RGBA{120, 80, 40, 255}
	green := color.RGBA{40, 200, 40, 255}

	for i := 0; i < count; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		for y := 0; y < 48; y++ {
			for x := 0; x < 64; x++ {
				c := brown
				if greenAt[i] && x >= 10 && x < 30 && y >= 10 && y < 20 {
					c = green
				}
				img.SetRGBA(x, y, c)
			}
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("still_%03d.png", i)))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
}

func TestRunOverImageDirectory(t *testing.T) {
	imgDir := t.TempDir()
	outDir := t.TempDir()
	writeStills(t, imgDir, 10, map[int]bool{3: true, 7: true})

	source, err := framesource.Open(context.Background(),
		framesource.NewImageDirOrigin(imgDir),
		framesource.Options{SampleRate: 1, FrameRate: 30})
	require.NoError(t, err)
	defer source.Close()

	store, err := timelinedb.Open(filepath.Join(outDir, "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	assembler, err := output.New(outDir, "stills", nil)
	require.NoError(t, err)

	p := &Pipeline{
		Source:      source,
		Detector:    detector.New(config.Default()),
		Aggregator:  timeline.New(2),
		Assembler:   assembler,
		Store:       store,
		SourceName:  "stills",
		TotalFrames: 10,
	}

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(10), summary.FramesObserved)
	assert.Equal(t, int64(2), summary.FramesWithWeeds)
	assert.InDelta(t, 0.2, summary.Coverage, 1e-9)

	assert.FileExists(t, filepath.Join(outDir, "timeline_stills.json"))
	assert.FileExists(t, filepath.Join(outDir, "summary_stills.csv"))
	assert.FileExists(t, filepath.Join(outDir, "report_stills.html"))
	assert.FileExists(t, filepath.Join(outDir, "keyframes", "keyframe_01_frame3.jpg"))
	assert.FileExists(t, filepath.Join(outDir, "keyframes", "keyframe_02_frame7.jpg"))

	runs, err := store.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(10), runs[0].Frames)
}

func TestRunSamplingProducesExpectedEntries(t *testing.T) {
	imgDir := t.TempDir()
	outDir := t.TempDir()
	writeStills(t, imgDir, 100, nil)

	source, err := framesource.Open(context.Background(),
		framesource.NewImageDirOrigin(imgDir),
		framesource.Options{SampleRate: 5, FrameRate: 30})
	require.NoError(t, err)
	defer source.Close()

	assembler, err := output.New(outDir, "sampled", nil)
	require.NoError(t, err)

	agg := timeline.New(2)
	p := &Pipeline{
		Source:     source,
		Detector:   detector.New(config.Default()),
		Aggregator: agg,
		Assembler:  assembler,
		SourceName: "sampled",
	}

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(20), summary.FramesObserved)

	entries := agg.Entries()
	require.Len(t, entries, 20)
	for i, entry := range entries {
		assert.Equal(t, int64(i*5), entry.FrameIndex)
	}
}

func TestRunFlushesPartialResultsOnCancel(t *testing.T) {
	imgDir := t.TempDir()
	outDir := t.TempDir()
	writeStills(t, imgDir, 10, nil)

	source, err := framesource.Open(context.Background(),
		framesource.NewImageDirOrigin(imgDir),
		framesource.Options{SampleRate: 1, FrameRate: 30})
	require.NoError(t, err)
	defer source.Close()

	assembler, err := output.New(outDir, "partial", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Pipeline{
		Source:     source,
		Detector:   detector.New(config.Default()),
		Aggregator: timeline.New(2),
		Assembler:  assembler,
		SourceName: "partial",
	}

	_, err = p.Run(ctx)
	require.NoError(t, err)

	// Cancellation is not a failure and the artifacts still exist.
	assert.FileExists(t, filepath.Join(outDir, "timeline_partial.json"))
	assert.FileExists(t, filepath.Join(outDir, "summary_partial.csv"))
}

// switchingConfig serves one config for the first N Latest calls, then a
// second one, simulating a file edit mid-run.
type switchingConfig struct {
	calls int
	after int
	first config.Config
	then  config.Config
}

func (s *switchingConfig) Latest() config.Config {
	s.calls++
	if s.calls > s.after {
		return s.then
	}
	return s.first
}

func TestRunAppliesConfigReloadBetweenFrames(t *testing.T) {
	imgDir := t.TempDir()
	outDir := t.TempDir()
	writeStills(t, imgDir, 6, map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true})

	source, err := framesource.Open(context.Background(),
		framesource.NewImageDirOrigin(imgDir),
		framesource.Options{SampleRate: 1, FrameRate: 30})
	require.NoError(t, err)
	defer source.Close()

	assembler, err := output.New(outDir, "reload", nil)
	require.NoError(t, err)

	// The replacement config excludes the 200px patch by area, so frames
	// processed after the switch detect nothing.
	strict := config.Default()
	strict.MinArea = 10000
	// Latest is called once at run start, then once per frame; frames
	// 0-2 see the default config, frames 3-5 the strict one.
	cfgSource := &switchingConfig{after: 4, first: config.Default(), then: strict}

	agg := timeline.New(2)
	p := &Pipeline{
		Source:     source,
		Detector:   detector.New(config.Default()),
		Aggregator: agg,
		Assembler:  assembler,
		Config:     cfgSource,
		SourceName: "reload",
	}

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	entries := agg.Entries()
	require.Len(t, entries, 6)
	for _, entry := range entries[:3] {
		assert.Equal(t, 1, entry.WeedCount(), "frame %d", entry.FrameIndex)
	}
	for _, entry := range entries[3:] {
		assert.Equal(t, 0, entry.WeedCount(), "frame %d", entry.FrameIndex)
	}
}

func TestFPSCounter(t *testing.T) {
	t.Parallel()

	f := newFPSCounter(5)
	now := time.Unix(1000, 0)
	f.now = func() time.Time { return now }

	assert.Equal(t, 0.0, f.Tick())

	// Ticks 100ms apart settle at 10 fps.
	var rate float64
	for i := 0; i < 10; i++ {
		now = now.Add(100 * time.Millisecond)
		rate = f.Tick()
	}
	assert.InDelta(t, 10.0, rate, 0.01)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/agrovision/weedscan/internal/config"
	"github.com/agrovision/weedscan/internal/detector"
	"github.com/agrovision/weedscan/internal/discovery"
	"github.com/agrovision/weedscan/internal/framesource"
	"github.com/agrovision/weedscan/internal/logger"
	"github.com/agrovision/weedscan/internal/metrics"
	"github.com/agrovision/weedscan/internal/monitor"
	"github.com/agrovision/weedscan/internal/output"
	"github.com/agrovision/weedscan/internal/pipeline"
	"github.com/agrovision/weedscan/internal/timeline"
	"github.com/agrovision/weedscan/internal/timelinedb"
)

var (
	// Source selection (exactly one)
	videoPath   = flag.String("video", "", "Video file to process")
	cameraIndex = flag.Int("camera", -1, "Camera device index (/dev/videoN)")
	streamURL   = flag.String("url", "", "Live MJPEG/JPEG stream URL")
	imagesDir   = flag.String("images", "", "Directory of still images to process")
	discover    = flag.String("discover", "", "Discover a stream on the local subnet (quick or full)")

	// Run parameters
	sampleRate  = flag.Int("sample", 5, "Process every Nth frame")
	keyframes   = flag.Int("keyframes", 5, "Keyframe budget (top frames by weed count)")
	frameRate   = flag.Float64("fps", 30, "Nominal source frame rate for timestamps")
	configPath  = flag.String("config", "weedscan_config.json", "Detection config file")
	watchConfig = flag.Bool("watch-config", false, "Reload the config file when it changes (applies between frames)")
	outDir      = flag.String("out", "./weedscan_output", "Output directory")
	saveFrames  = flag.Bool("save-frames", false, "Write every annotated frame as JPEG")
	saveVideo   = flag.Bool("save-video", true, "Encode annotated frames into a video (file and camera sources)")

	// Servers and storage (empty disables)
	monitorAddr = flag.String("monitor", "", "Live monitor server address (e.g. :8090)")
	metricsAddr = flag.String("metrics", "", "Prometheus metrics server address (e.g. :9090)")
	dbPath      = flag.String("db", "", "SQLite run history database path")

	// Logging
	logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		logger.Error("Main", "%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, cfgSource := loadConfig(ctx)
	det := detector.New(cfg)

	origin, name, total, err := resolveSource(ctx)
	if err != nil {
		return err
	}

	source, err := framesource.Open(ctx, origin, framesource.Options{
		SampleRate: *sampleRate,
		FrameRate:  *frameRate,
	})
	if err != nil {
		return err
	}
	defer source.Close()
	logger.Info("Main", "source %s connected, sampling every %d frame(s)", name, *sampleRate)

	var sinks output.Tee
	if *saveFrames {
		dirSink, err := output.NewDirSink(filepath.Join(*outDir, "frames"))
		if err != nil {
			return err
		}
		sinks = append(sinks, dirSink)
	}
	if *saveVideo && (*videoPath != "" || *cameraIndex >= 0) {
		videoSink, err := output.NewVideoSink(filepath.Join(*outDir, fmt.Sprintf("annotated_%s.mp4", name)), *frameRate)
		if err != nil {
			return err
		}
		sinks = append(sinks, videoSink)
		logger.Info("Main", "encoding annotated video to %s", videoSink.Path())
	}
	var sink output.FrameSink
	switch len(sinks) {
	case 0:
	case 1:
		sink = sinks[0]
	default:
		sink = sinks
	}
	assembler, err := output.New(*outDir, name, sink)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Source:      source,
		Detector:    det,
		Aggregator:  timeline.New(*keyframes),
		Assembler:   assembler,
		Config:      cfgSource,
		SourceName:  name,
		TotalFrames: total,
	}

	if *metricsAddr != "" {
		p.Metrics = metrics.New()
		go func() {
			logger.Info("Main", "metrics server on %s", *metricsAddr)
			if err := p.Metrics.StartServer(*metricsAddr); err != nil {
				logger.Error("Main", "metrics server: %v", err)
			}
		}()
	}

	if *monitorAddr != "" {
		p.Monitor = monitor.NewServer()
		defer p.Monitor.Stop()
		server := &http.Server{Addr: *monitorAddr, Handler: p.Monitor.Handler()}
		go func() {
			logger.Info("Main", "monitor server on http://localhost%s", *monitorAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Main", "monitor server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer shutdownCancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	if *dbPath != "" {
		store, err := timelinedb.Open(*dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		p.Store = store
	}

	_, err = p.Run(ctx)
	return err
}

// loadConfig loads the detection config and, with -watch-config, returns
// the watcher so the pipeline can pick up reloads between frames.
func loadConfig(ctx context.Context) (config.Config, pipeline.ConfigSource) {
	if *watchConfig {
		watcher, err := config.NewWatcher(ctx, *configPath)
		if err != nil {
			logger.Warn("Main", "config watch unavailable: %v", err)
			return config.Load(*configPath), nil
		}
		return watcher.Latest(), watcher
	}
	return config.Load(*configPath), nil
}

// resolveSource turns the source flags into an origin, a base name for
// output artifacts, and the total frame count when known.
func resolveSource(ctx context.Context) (framesource.Origin, string, int64, error) {
	switch {
	case *videoPath != "":
		name := strings.TrimSuffix(filepath.Base(*videoPath), filepath.Ext(*videoPath))
		return framesource.NewVideoFileOrigin(*videoPath), name, 0, nil

	case *imagesDir != "":
		origin := framesource.NewImageDirOrigin(*imagesDir)
		if err := origin.Open(ctx); err != nil {
			return nil, "", 0, err
		}
		return origin, filepath.Base(*imagesDir), origin.Len(), nil

	case *cameraIndex >= 0:
		return framesource.NewCameraOrigin(*cameraIndex), fmt.Sprintf("camera%d", *cameraIndex), 0, nil

	case *streamURL != "":
		return framesource.NewHTTPOrigin(*streamURL, 10*time.Second), "live", 0, nil

	case *discover != "":
		endpoints, err := discovery.Scan(ctx, discovery.Options{Policy: discovery.Policy(*discover)})
		if err != nil {
			return nil, "", 0, err
		}
		if len(endpoints) == 0 {
			return nil, "", 0, fmt.Errorf("no stream endpoint found on the local subnet")
		}
		url := endpoints[0].URL()
		logger.Info("Main", "using discovered endpoint %s", url)
		return framesource.NewHTTPOrigin(url, 10*time.Second), "live", 0, nil

	default:
		return nil, "", 0, fmt.Errorf("no source given: use -video, -camera, -url, -images or -discover")
	}
}

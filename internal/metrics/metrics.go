package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Pipeline counters
	FramesRead      atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesSkipped   atomic.Uint64
	Detections      atomic.Uint64
	FramesWithWeeds atomic.Uint64

	// Source health counters
	DecodeErrors atomic.Uint64
	Reconnects   atomic.Uint64

	// Connection state (StreamConnectionState ordinal)
	ConnectionState atomic.Uint64

	// Latency tracking
	DetectLatencyMs atomic.Uint64 // Last detection latency in ms
	FrameLatencyMs  atomic.Uint64 // Last full frame iteration latency in ms

	// Throughput (frames per second * 100)
	FPSCentis atomic.Uint64

	// Keyframe selection
	KeyframesRetained atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Pipeline metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_frames_read_total",
			Help: "Total frames read from the source",
		},
		func() float64 { return float64(m.FramesRead.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_frames_processed_total",
			Help: "Total sampled frames run through detection",
		},
		func() float64 { return float64(m.FramesProcessed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_frames_skipped_total",
			Help: "Total frames skipped by sampling",
		},
		func() float64 { return float64(m.FramesSkipped.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_detections_total",
			Help: "Total weed detections across all frames",
		},
		func() float64 { return float64(m.Detections.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_frames_with_weeds_total",
			Help: "Total processed frames with at least one detection",
		},
		func() float64 { return float64(m.FramesWithWeeds.Load()) },
	))

	// Source health metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_decode_errors_total",
			Help: "Total undecodable frames skipped",
		},
		func() float64 { return float64(m.DecodeErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_reconnects_total",
			Help: "Total stream reconnections",
		},
		func() float64 { return float64(m.Reconnects.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_connection_state",
			Help: "Stream connection state (0=disconnected 1=connecting 2=connected 3=reconnecting 4=closed)",
		},
		func() float64 { return float64(m.ConnectionState.Load()) },
	))

	// Latency metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_detect_latency_ms",
			Help: "Last detection latency in milliseconds",
		},
		func() float64 { return float64(m.DetectLatencyMs.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_frame_latency_ms",
			Help: "Last full frame iteration latency in milliseconds",
		},
		func() float64 { return float64(m.FrameLatencyMs.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_fps",
			Help: "Processing throughput in frames per second",
		},
		func() float64 { return float64(m.FPSCentis.Load()) / 100 },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "weedscan_keyframes_retained",
			Help: "Keyframes currently retained by the aggregator",
		},
		func() float64 { return float64(m.KeyframesRetained.Load()) },
	))
}

// UpdateDetectLatency records the duration of one detection pass
func (m *Metrics) UpdateDetectLatency(duration time.Duration) {
	m.DetectLatencyMs.Store(uint64(duration.Milliseconds()))
}

// UpdateFrameLatency records the duration of one full frame iteration
func (m *Metrics) UpdateFrameLatency(start time.Time) {
	m.FrameLatencyMs.Store(uint64(time.Since(start).Milliseconds()))
}

// UpdateFPS stores the current throughput
func (m *Metrics) UpdateFPS(fps float64) {
	m.FPSCentis.Store(uint64(fps * 100))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	http.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, nil)
}

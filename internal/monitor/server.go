// Package monitor serves a live browser view of a running detection
// pipeline: the latest annotated frame as MJPEG, plus run status as JSON
// and SSE.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/agrovision/weedscan/internal/logger"
)

// Status is the run snapshot served by /api/status.
type Status struct {
	Source          string  `json:"source"`
	State           string  `json:"state"`
	FramesRead      uint64  `json:"frames_read"`
	FramesProcessed uint64  `json:"frames_processed"`
	Detections      uint64  `json:"detections"`
	FramesWithWeeds uint64  `json:"frames_with_weeds"`
	Coverage        float64 `json:"coverage"`
	CurrentFPS      float64 `json:"current_fps"`
	Reconnects      uint64  `json:"reconnects"`
	DecodeErrors    uint64  `json:"decode_errors"`
	Timestamp       float64 `json:"timestamp"`
}

// Server serves the live monitor endpoints. The pipeline pushes frames
// and status snapshots; HTTP clients pull.
type Server struct {
	mu          sync.Mutex
	status      Status
	broadcaster *FrameBroadcaster

	// StatusInterval paces the SSE status stream.
	StatusInterval time.Duration
}

// NewServer returns a configured monitor server.
func NewServer() *Server {
	return &Server{
		broadcaster:    NewFrameBroadcaster(),
		StatusInterval: time.Second,
	}
}

// PublishFrame encodes the annotated frame once and fans it out to all
// stream clients. Encoding is skipped when nobody is watching.
func (s *Server) PublishFrame(img image.Image) {
	if !s.broadcaster.HasClients() {
		return
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		logger.Warn("Monitor", "frame encode failed: %v", err)
		return
	}
	s.broadcaster.Publish(buf.Bytes())
}

// SetStatus replaces the status snapshot served to clients.
func (s *Server) SetStatus(status Status) {
	status.Timestamp = float64(time.Now().Unix())
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Server) snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stop disconnects all stream clients.
func (s *Server) Stop() {
	s.broadcaster.Stop()
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)
	streamMJPEGFromChannel(w, frameCh)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(s.StatusInterval)
	defer ticker.Stop()

	for {
		if err := writeSSE(w, s.snapshot()); err != nil {
			return
		}
		flusher.Flush()
		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}

func writeSSE(w http.ResponseWriter, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// Package framesource presents a uniform lazy sequence of frames over a
// file-backed, device-backed or network origin, with transparent
// reconnection for live streams.
package framesource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync/atomic"
	"time"

	"github.com/agrovision/weedscan/internal/logger"
	"github.com/agrovision/weedscan/pkg/types"
)

// State is the connection lifecycle state of a Source.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

var stateNames = [...]string{"Disconnected", "Connecting", "Connected", "Reconnecting", "Closed"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Origin is the underlying frame producer. Implementations own the actual
// connection or file handles; the Source drives open/close and sequencing.
type Origin interface {
	// Open establishes the connection. Called again after Close for
	// reconnection.
	Open(ctx context.Context) error
	// ReadFrame decodes the next frame. io.EOF signals end of stream; a
	// *DecodeError signals one bad frame on a healthy connection; any
	// other error signals connection loss.
	ReadFrame(ctx context.Context) (image.Image, error)
	Close() error
	// Finite reports whether the origin has a natural end (file,
	// directory) as opposed to a live stream.
	Finite() bool
}

// FrameSkipper is implemented by origins that can discard a frame without
// decoding it, so sampling stays cheap.
type FrameSkipper interface {
	SkipFrame(ctx context.Context) error
}

// Options configures a Source.
type Options struct {
	// SampleRate forwards only every Nth frame (N >= 1). Frame indices in
	// the forwarded sequence are true origin indices.
	SampleRate int
	// FrameRate is the nominal fps used to derive timestamps for finite
	// origins. Zero means wall clock (live sources).
	FrameRate float64
	// OpenTimeout bounds the initial handshake including the first
	// decodable frame.
	OpenTimeout time.Duration
	// MaxDecodeFailures is the number of consecutive decode failures
	// treated as a connection loss.
	MaxDecodeFailures int
	Backoff           BackoffPolicy
}

func (o Options) withDefaults() Options {
	if o.SampleRate < 1 {
		o.SampleRate = 1
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 5 * time.Second
	}
	if o.MaxDecodeFailures <= 0 {
		o.MaxDecodeFailures = 5
	}
	if o.Backoff.MaxAttempts == 0 {
		o.Backoff = DefaultBackoff()
	}
	return o
}

// Stats are the source's frame accounting counters.
type Stats struct {
	FramesRead      int64 // Frames read or skipped from the origin
	FramesForwarded int64 // Frames handed to the caller
	DecodeErrors    int64
	Reconnects      int64
}

// Source is the connection state machine. It owns the origin exclusively
// and is not safe for concurrent Next calls.
type Source struct {
	origin Origin
	opts   Options

	state  atomic.Int32
	opened time.Time

	nextIndex int64 // Next origin frame index to be read
	pending   *types.Frame

	consecutiveDecodeFailures int

	framesRead      atomic.Int64
	framesForwarded atomic.Int64
	decodeErrors    atomic.Int64
	reconnects      atomic.Int64
}

// Open connects the origin and verifies it yields one decodable frame
// within the open timeout. The verification frame is buffered and will be
// the first frame delivered by Next, so numbering starts at 0.
func Open(ctx context.Context, origin Origin, opts Options) (*Source, error) {
	s := &Source{origin: origin, opts: opts.withDefaults()}
	s.state.Store(int32(Connecting))

	openCtx, cancel := context.WithTimeout(ctx, s.opts.OpenTimeout)
	defer cancel()

	frame, err := s.connect(openCtx)
	if err != nil {
		s.state.Store(int32(Disconnected))
		return nil, &ConnectionError{Target: fmt.Sprintf("%T", origin), Err: err}
	}

	s.opened = time.Now()
	s.pending = frame
	s.state.Store(int32(Connected))
	return s, nil
}

// connect opens the origin and reads one verification frame. The caller
// assigns states.
func (s *Source) connect(ctx context.Context) (*types.Frame, error) {
	if err := s.origin.Open(ctx); err != nil {
		_ = s.origin.Close()
		return nil, err
	}
	img, err := s.origin.ReadFrame(ctx)
	if err != nil {
		_ = s.origin.Close()
		return nil, fmt.Errorf("no decodable frame: %w", err)
	}
	index := s.nextIndex
	s.nextIndex++
	s.framesRead.Add(1)
	return &types.Frame{Image: img, Index: index, Timestamp: s.timestamp(index)}, nil
}

// State returns the current connection state.
func (s *Source) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the frame counters.
func (s *Source) Stats() Stats {
	return Stats{
		FramesRead:      s.framesRead.Load(),
		FramesForwarded: s.framesForwarded.Load(),
		DecodeErrors:    s.decodeErrors.Load(),
		Reconnects:      s.reconnects.Load(),
	}
}

// Next returns the next sampled frame. It returns io.EOF when a finite
// origin ends, ErrClosed after Close, a *StreamLostError when the
// reconnect budget is exhausted, and ctx.Err() on cancellation.
func (s *Source) Next(ctx context.Context) (types.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			s.shutdown()
			return types.Frame{}, err
		}
		if s.State() == Closed {
			return types.Frame{}, ErrClosed
		}

		if f := s.takePending(); f != nil {
			s.framesForwarded.Add(1)
			return *f, nil
		}

		index := s.nextIndex

		// Frames between samples are discarded without decoding when the
		// origin supports it.
		if index%int64(s.opts.SampleRate) != 0 {
			if err := s.skip(ctx); err != nil {
				if handled, ferr := s.handleReadError(ctx, err); !handled {
					return types.Frame{}, ferr
				}
			}
			continue
		}

		img, err := s.origin.ReadFrame(ctx)
		if err != nil {
			if handled, ferr := s.handleReadError(ctx, err); !handled {
				return types.Frame{}, ferr
			}
			continue
		}

		s.consecutiveDecodeFailures = 0
		s.nextIndex++
		s.framesRead.Add(1)
		s.framesForwarded.Add(1)
		return types.Frame{Image: img, Index: index, Timestamp: s.timestamp(index)}, nil
	}
}

// takePending pops the buffered verification frame if it falls on a sample
// boundary; otherwise it is discarded like any unsampled frame.
func (s *Source) takePending() *types.Frame {
	f := s.pending
	if f == nil {
		return nil
	}
	s.pending = nil
	if f.Index%int64(s.opts.SampleRate) != 0 {
		return nil
	}
	return f
}

func (s *Source) skip(ctx context.Context) error {
	if skipper, ok := s.origin.(FrameSkipper); ok {
		if err := skipper.SkipFrame(ctx); err != nil {
			return err
		}
		s.nextIndex++
		s.framesRead.Add(1)
		return nil
	}
	if _, err := s.origin.ReadFrame(ctx); err != nil {
		return err
	}
	s.nextIndex++
	s.framesRead.Add(1)
	return nil
}

// handleReadError absorbs transient failures and drives reconnection.
// It returns handled=false with the error the caller must surface.
func (s *Source) handleReadError(ctx context.Context, err error) (bool, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.shutdown()
		return false, err
	}

	if errors.Is(err, io.EOF) {
		if s.origin.Finite() {
			s.shutdown()
			return false, io.EOF
		}
		// A live origin signalling EOF is a dropped connection.
		return s.reconnect(ctx, err)
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		s.decodeErrors.Add(1)
		s.consecutiveDecodeFailures++
		logger.Warn("FrameSource", "skipping bad frame %d: %v", s.nextIndex, err)
		s.nextIndex++
		s.framesRead.Add(1)
		if s.consecutiveDecodeFailures < s.opts.MaxDecodeFailures {
			return true, nil
		}
		logger.Warn("FrameSource", "%d consecutive decode failures, treating as connection loss",
			s.consecutiveDecodeFailures)
		return s.reconnect(ctx, err)
	}

	if s.origin.Finite() {
		s.shutdown()
		return false, err
	}
	return s.reconnect(ctx, err)
}

// reconnect retries the origin with bounded exponential backoff. On
// success the verification frame is buffered and numbering continues
// monotonically; no frames are replayed.
func (s *Source) reconnect(ctx context.Context, cause error) (bool, error) {
	s.state.Store(int32(Reconnecting))
	s.consecutiveDecodeFailures = 0
	_ = s.origin.Close()

	policy := s.opts.Backoff
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		logger.Info("FrameSource", "reconnect attempt %d/%d (delay %s)",
			attempt, policy.MaxAttempts, policy.Delay(attempt))

		if err := policy.wait(ctx, attempt); err != nil {
			s.shutdown()
			return false, err
		}

		openCtx, cancel := context.WithTimeout(ctx, s.opts.OpenTimeout)
		frame, err := s.connect(openCtx)
		cancel()
		if err != nil {
			logger.Warn("FrameSource", "reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		s.pending = frame
		s.reconnects.Add(1)
		s.state.Store(int32(Connected))
		logger.Info("FrameSource", "reconnected, resuming at frame %d", frame.Index)
		return true, nil
	}

	s.shutdown()
	return false, &StreamLostError{
		Attempts:        policy.MaxAttempts,
		FramesProcessed: s.framesForwarded.Load(),
		Err:             cause,
	}
}

// Close transitions the source to Closed. Closed is terminal and is
// entered directly from any state, including mid-connect; no intermediate
// Disconnected is ever reported. Idempotent.
func (s *Source) Close() error {
	if State(s.state.Swap(int32(Closed))) == Closed {
		return nil
	}
	return s.origin.Close()
}

func (s *Source) shutdown() {
	_ = s.Close()
}

func (s *Source) timestamp(index int64) float64 {
	if s.origin.Finite() && s.opts.FrameRate > 0 {
		return float64(index) / s.opts.FrameRate
	}
	if s.opened.IsZero() {
		return 0
	}
	return time.Since(s.opened).Seconds()
}

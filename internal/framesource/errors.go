package framesource

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Next after the source has reached its terminal
// state.
var ErrClosed = errors.New("framesource: source closed")

// ConnectionError reports a failed initial open. It is fatal to the run.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("framesource: connect %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StreamLostError reports an exhausted reconnect budget. FramesProcessed
// carries how many frames were successfully forwarded before the loss so
// the caller can report partial progress.
type StreamLostError struct {
	Attempts        int
	FramesProcessed int64
	Err             error
}

func (e *StreamLostError) Error() string {
	return fmt.Sprintf("framesource: stream lost after %d reconnect attempts (%d frames processed): %v",
		e.Attempts, e.FramesProcessed, e.Err)
}

func (e *StreamLostError) Unwrap() error { return e.Err }

// DecodeError reports a single undecodable frame on an otherwise healthy
// connection. Origins return it to distinguish a bad payload from a lost
// connection; the source skips the frame and counts it.
type DecodeError struct {
	Index int64
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("framesource: decode frame %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

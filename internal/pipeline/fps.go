package pipeline

import "time"

// fpsCounter computes throughput over a sliding window of recent frame
// completion times.
type fpsCounter struct {
	window []time.Time
	size   int
	now    func() time.Time
}

func newFPSCounter(size int) *fpsCounter {
	if size < 2 {
		size = 2
	}
	return &fpsCounter{size: size, now: time.Now}
}

// Tick records one completed frame and returns the current rate, or 0
// until two frames have been seen.
func (f *fpsCounter) Tick() float64 {
	f.window = append(f.window, f.now())
	if len(f.window) > f.size {
		f.window = f.window[1:]
	}
	if len(f.window) < 2 {
		return 0
	}
	elapsed := f.window[len(f.window)-1].Sub(f.window[0]).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(len(f.window)-1) / elapsed
}

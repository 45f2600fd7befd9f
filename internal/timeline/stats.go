package timeline

import "math"

// RunningStats accumulates count/sum/min/max without retaining samples.
type RunningStats struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
}

func (s *RunningStats) Add(v float64) {
	if s.Count == 0 {
		s.Min, s.Max = v, v
	} else {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Count++
	s.Sum += v
}

func (s *RunningStats) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

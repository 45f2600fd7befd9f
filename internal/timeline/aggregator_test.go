package timeline

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrovision/weedscan/pkg/types"
)

func frameAt(index int64) types.Frame {
	return types.Frame{
		Image:     image.NewRGBA(image.Rect(0, 0, 2, 2)),
		Index:     index,
		Timestamp: float64(index) / 30,
	}
}

func detections(n int) []types.Detection {
	out := make([]types.Detection, n)
	for i := range out {
		out[i] = types.Detection{ID: i, Area: 100 + 10*i}
	}
	return out
}

func TestObserveRejectsOutOfOrder(t *testing.T) {
	t.Parallel()

	agg := New(3)
	require.NoError(t, agg.Observe(frameAt(0), nil))
	require.NoError(t, agg.Observe(frameAt(5), nil))

	err := agg.Observe(frameAt(5), nil)
	var ooo *OutOfOrderError
	require.ErrorAs(t, err, &ooo)
	assert.Equal(t, int64(5), ooo.Index)
	assert.Equal(t, int64(5), ooo.LastIndex)

	err = agg.Observe(frameAt(3), nil)
	require.ErrorAs(t, err, &ooo)

	// A rejected frame leaves the timeline untouched.
	assert.Len(t, agg.Entries(), 2)
}

func TestCoverageAndStats(t *testing.T) {
	t.Parallel()

	agg := New(3)
	counts := []int{0, 2, 0, 1, 3}
	for i, n := range counts {
		require.NoError(t, agg.Observe(frameAt(int64(i)), detections(n)))
	}

	summary, _ := agg.Finalize()
	assert.Equal(t, int64(5), summary.FramesObserved)
	assert.Equal(t, int64(3), summary.FramesWithWeeds)
	assert.InDelta(t, 0.6, summary.Coverage, 1e-9)
	assert.Equal(t, int64(6), summary.TotalDetections)
	assert.Equal(t, 3.0, summary.CountStats.Max)
	assert.Equal(t, 0.0, summary.CountStats.Min)
	assert.Equal(t, 100.0, summary.AreaStats.Min)
	assert.Equal(t, 120.0, summary.AreaStats.Max)
	assert.Greater(t, summary.MeanArea, 0.0)
}

func TestKeyframeBudgetAndEviction(t *testing.T) {
	t.Parallel()

	agg := New(2)
	counts := []int{1, 3, 0, 2, 5}
	for i, n := range counts {
		require.NoError(t, agg.Observe(frameAt(int64(i)), detections(n)))
	}

	_, keyframes := agg.Finalize()
	require.Len(t, keyframes, 2)

	// Top two by count are frames 1 (3 weeds) and 4 (5 weeds), ordered
	// by frame index.
	assert.Equal(t, int64(1), keyframes[0].Entry.FrameIndex)
	assert.Equal(t, int64(4), keyframes[1].Entry.FrameIndex)
	assert.NotNil(t, keyframes[0].Image)
}

func TestKeyframeTiesPreferEarlierFrame(t *testing.T) {
	t.Parallel()

	agg := New(2)
	// Frames 0, 1, 2 all have two detections; only the two earliest fit.
	for i := int64(0); i < 3; i++ {
		require.NoError(t, agg.Observe(frameAt(i), detections(2)))
	}

	_, keyframes := agg.Finalize()
	require.Len(t, keyframes, 2)
	assert.Equal(t, int64(0), keyframes[0].Entry.FrameIndex)
	assert.Equal(t, int64(1), keyframes[1].Entry.FrameIndex)
}

func TestKeyframesExcludeEmptyFrames(t *testing.T) {
	t.Parallel()

	agg := New(5)
	require.NoError(t, agg.Observe(frameAt(0), nil))
	require.NoError(t, agg.Observe(frameAt(1), detections(1)))

	_, keyframes := agg.Finalize()
	require.Len(t, keyframes, 1)
	assert.Equal(t, int64(1), keyframes[0].Entry.FrameIndex)
}

func TestFinalizeEmptyRun(t *testing.T) {
	t.Parallel()

	summary, keyframes := New(3).Finalize()
	assert.Equal(t, int64(0), summary.FramesObserved)
	assert.Equal(t, 0.0, summary.Coverage)
	assert.Empty(t, keyframes)
}

func TestRunningStats(t *testing.T) {
	t.Parallel()

	var s RunningStats
	assert.Equal(t, 0.0, s.Mean())

	for _, v := range []float64{4, 2, 8} {
		s.Add(v)
	}
	assert.Equal(t, int64(3), s.Count)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 8.0, s.Max)
	assert.InDelta(t, 14.0/3, s.Mean(), 1e-9)
}

package timeline

import (
	"container/heap"
	"sort"
)

// topK keeps the k candidates with the highest weed counts. Ties are
// broken toward the earlier frame; since candidates arrive in index
// order, an incoming frame never displaces an equal-count earlier one.
type topK struct {
	k     int
	items candidateHeap
}

func newTopK(k int) *topK {
	return &topK{k: k}
}

func (t *topK) offer(c Keyframe) {
	if t.k <= 0 || c.Entry.WeedCount() == 0 {
		return
	}
	if t.items.Len() < t.k {
		heap.Push(&t.items, c)
		return
	}
	if c.Entry.WeedCount() > t.items[0].Entry.WeedCount() {
		t.items[0] = c
		heap.Fix(&t.items, 0)
	}
}

// drain returns the retained keyframes ordered by frame index.
func (t *topK) drain() []Keyframe {
	out := make([]Keyframe, len(t.items))
	copy(out, t.items)
	t.items = nil
	sort.Slice(out, func(i, j int) bool {
		return out[i].Entry.FrameIndex < out[j].Entry.FrameIndex
	})
	return out
}

// candidateHeap is a min-heap: the weakest keyframe (lowest count, then
// latest index) sits at the root and is evicted first.
type candidateHeap []Keyframe

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	ci, cj := h[i].Entry.WeedCount(), h[j].Entry.WeedCount()
	if ci != cj {
		return ci < cj
	}
	return h[i].Entry.FrameIndex > h[j].Entry.FrameIndex
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) { *h = append(*h, x.(Keyframe)) }

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

package reactor

import (
	"container/heap"
	"time"
)

// Timer is a callback armed on a Loop. Timers are created by AfterFunc and
// Every and must only be used from the loop goroutine.
type Timer struct {
	loop   *Loop
	when   time.Time
	period time.Duration
	fn     func()
	seq    uint64
	index  int
	armed  bool
}

// Stop disarms the timer. It returns true if the timer was armed and will now
// not fire, false if it had already fired (one-shot) or been stopped.
// Calling Stop on a nil Timer is allowed.
func (t *Timer) Stop() bool {
	if t == nil || !t.armed {
		return false
	}
	t.armed = false
	if t.index >= 0 {
		heap.Remove(&t.loop.timers, t.index)
	}
	return true
}

// Active reports whether the timer is still armed.
func (t *Timer) Active() bool {
	return t != nil && t.armed
}

// When returns the next deadline of the timer.
func (t *Timer) When() time.Time {
	return t.when
}

// timerHeap orders timers by deadline, then by creation order.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer) //nolint:forcetypeassert // heap only holds *Timer
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

package reactor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)

func newTestLoop() (*Loop, *ManualClock) {
	clock := NewManualClock(epoch)
	return New(WithClock(clock)), clock
}

func TestAfterFuncFiresOnce(t *testing.T) {
	l, clock := newTestLoop()

	fired := 0
	timer := l.AfterFunc(5*time.Second, func() { fired++ })

	clock.Advance(4 * time.Second)
	l.RunPending()
	if fired != 0 {
		t.Fatalf("fired = %d before deadline, want 0", fired)
	}

	clock.Advance(time.Second)
	l.RunPending()
	clock.Advance(time.Minute)
	l.RunPending()

	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	if timer.Active() {
		t.Error("Active() = true after firing")
	}
}

func TestTimerStopIsIdempotent(t *testing.T) {
	tests := []struct {
		name     string
		advance  time.Duration
		wantStop bool
	}{
		{"stop before deadline", time.Second, true},
		{"stop after firing", 10 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, clock := newTestLoop()

			fired := 0
			timer := l.AfterFunc(5*time.Second, func() { fired++ })

			clock.Advance(tt.advance)
			l.RunPending()
			firedBefore := fired

			if got := timer.Stop(); got != tt.wantStop {
				t.Errorf("first Stop() = %v, want %v", got, tt.wantStop)
			}
			if timer.Stop() {
				t.Error("second Stop() = true, want false")
			}

			clock.Advance(time.Hour)
			l.RunPending()
			if fired != firedBefore {
				t.Errorf("fired = %d after Stop, want %d", fired, firedBefore)
			}
			if l.PendingTimers() != 0 {
				t.Errorf("PendingTimers() = %d, want 0", l.PendingTimers())
			}
		})
	}
}

func TestNilTimerStop(t *testing.T) {
	var timer *Timer
	if timer.Stop() {
		t.Error("nil Stop() = true")
	}
	if timer.Active() {
		t.Error("nil Active() = true")
	}
}

func TestTimerOrder(t *testing.T) {
	l, clock := newTestLoop()

	var order []string
	l.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	l.AfterFunc(time.Second, func() { order = append(order, "a") })
	l.AfterFunc(2*time.Second, func() { order = append(order, "b1") })
	l.AfterFunc(2*time.Second, func() { order = append(order, "b2") })

	clock.Advance(5 * time.Second)
	l.RunPending()

	want := []string{"a", "b1", "b2", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestEvery(t *testing.T) {
	l, clock := newTestLoop()

	ticks := 0
	var timer *Timer
	timer = l.Every(time.Second, func() {
		ticks++
		if ticks == 3 {
			timer.Stop()
		}
	})

	for range 10 {
		clock.Advance(time.Second)
		l.RunPending()
	}

	if ticks != 3 {
		t.Errorf("ticks = %d, want 3", ticks)
	}
	if timer.Active() {
		t.Error("periodic timer still active after Stop")
	}
}

func TestDeferRunsInSameTurn(t *testing.T) {
	l, _ := newTestLoop()

	var order []int
	l.Post(func() {
		order = append(order, 1)
		l.Defer(func() {
			order = append(order, 3)
			l.Defer(func() { order = append(order, 4) })
		})
		order = append(order, 2)
	})

	if n := l.RunPending(); n != 3 {
		t.Errorf("RunPending() = %d, want 3", n)
	}
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("order = %v, want [1 2 3 4]", order)
		}
	}
}

func TestCallbackPanicIsRecovered(t *testing.T) {
	l, _ := newTestLoop()

	ran := false
	l.Post(func() { panic("boom") })
	l.Post(func() { ran = true })
	l.RunPending()

	if !ran {
		t.Error("callback after panic did not run")
	}
}

func TestRunProcessesPostsAndStops(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	var hits atomic.Int32
	done := make(chan struct{})
	for range 10 {
		l.Post(func() { hits.Add(1) })
	}
	l.Post(func() {
		l.AfterFunc(10*time.Millisecond, func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer posted from loop never fired")
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if hits.Load() != 10 {
		t.Errorf("hits = %d, want 10", hits.Load())
	}
	if l.Post(func() {}) {
		t.Error("Post() after stop = true, want false")
	}
}

package reactor

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
)

// defaultQueueSize is the buffer of the cross-goroutine event queue.
const defaultQueueSize = 256

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Scheduler is the part of a Loop that controllers use. It is satisfied by
// *Loop and only valid on the loop goroutine.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) *Timer
	Every(d time.Duration, fn func()) *Timer
	Defer(fn func())
}

var _ Scheduler = (*Loop)(nil)

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithQueueSize sets the buffer of the Post queue.
func WithQueueSize(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.queueSize = n
		}
	}
}

// WithLogger sets the logger used for recovered callback panics.
func WithLogger(logger Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// Loop is a single-threaded event loop.
//
// Thread Safety:
//   - Post and Close are safe for concurrent use.
//   - Everything else must be called from the loop goroutine (inside a
//     callback, or from the goroutine calling RunPending in tests).
type Loop struct {
	clock     Clock
	queueSize int
	events    chan func()
	local     []func()
	timers    timerHeap
	seq       uint64
	logger    Logger

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a loop. It does nothing until Run or RunPending is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		clock:     systemClock{},
		queueSize: defaultQueueSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.events = make(chan func(), l.queueSize)
	return l
}

// Now returns the loop clock's current time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Post queues fn to run on the loop goroutine. It blocks while the queue is
// full and returns false if the loop has been closed. Never call Post from
// the loop goroutine; use Defer.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Defer queues fn to run after the current callback, in the same turn.
func (l *Loop) Defer(fn func()) {
	l.local = append(l.local, fn)
}

// AfterFunc arms a one-shot timer that calls fn after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	return l.arm(d, 0, fn)
}

// Every arms a periodic timer that calls fn every d until stopped.
// Deadlines are computed from the previous deadline, not from when fn ran.
func (l *Loop) Every(d time.Duration, fn func()) *Timer {
	if d <= 0 {
		d = time.Millisecond
	}
	return l.arm(d, d, fn)
}

func (l *Loop) arm(d, period time.Duration, fn func()) *Timer {
	if d < 0 {
		d = 0
	}
	l.seq++
	t := &Timer{
		loop:   l,
		when:   l.clock.Now().Add(d),
		period: period,
		fn:     fn,
		seq:    l.seq,
		armed:  true,
	}
	heap.Push(&l.timers, t)
	return t
}

// Run processes events and timers until ctx is cancelled or Close is called.
//
// Parameters:
//   - ctx: Cancelling ctx stops the loop
//
// Returns:
//   - error: ctx.Err() on cancellation, nil after Close
func (l *Loop) Run(ctx context.Context) error {
	wake := time.NewTimer(time.Hour)
	defer wake.Stop()

	for {
		l.drainLocal()
		l.fireDue()
		l.drainLocal()

		var wakeC <-chan time.Time
		if len(l.timers) > 0 {
			wake.Reset(max(l.timers[0].when.Sub(l.clock.Now()), 0))
			wakeC = wake.C
		}

		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.events:
			l.call(fn)
		case <-wakeC:
		}
	}
}

// RunPending runs everything that is ready without waiting: queued Post
// callbacks, deferred callbacks and timers whose deadline has passed on the
// loop clock. It repeats until nothing is ready and returns the number of
// callbacks run. Intended for tests with ManualClock.
func (l *Loop) RunPending() int {
	ran := 0
	for {
		n := l.drainLocal()
		n += l.fireDue()
		n += l.drainLocal()

	queue:
		for {
			select {
			case fn := <-l.events:
				l.call(fn)
				n++
				n += l.drainLocal()
			default:
				break queue
			}
		}

		if n == 0 {
			return ran
		}
		ran += n
	}
}

// Close stops Run and makes further Post calls fail. Safe to call more than once.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// PendingTimers returns the number of armed timers.
func (l *Loop) PendingTimers() int {
	return len(l.timers)
}

// fireDue runs every timer whose deadline has passed.
func (l *Loop) fireDue() int {
	n := 0
	now := l.clock.Now()
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		t := heap.Pop(&l.timers).(*Timer) //nolint:forcetypeassert // heap only holds *Timer
		if t.period > 0 {
			t.when = t.when.Add(t.period)
			heap.Push(&l.timers, t)
		} else {
			t.armed = false
		}
		l.call(t.fn)
		n++
		n += l.drainLocal()
	}
	return n
}

// drainLocal runs deferred callbacks, including any they defer in turn.
func (l *Loop) drainLocal() int {
	n := 0
	for len(l.local) > 0 {
		fn := l.local[0]
		l.local[0] = nil
		l.local = l.local[1:]
		l.call(fn)
		n++
	}
	return n
}

func (l *Loop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil && l.logger != nil {
			l.logger.Error("reactor callback panic", "error", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

package engine

import (
	"container/heap"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a pending callback. Stop reports whether it prevented the call.
type Timer interface {
	Stop() bool
}

// Scheduler is the clock and delayed-callback source of an engine. Callbacks
// never run concurrently with each other.
type Scheduler interface {
	Now() time.Duration
	AfterFunc(d time.Duration, fn func()) Timer
}

type timerEntry struct {
	q     *timerQueue
	at    time.Duration
	seq   uint64
	fn    func()
	index int // -1 once fired or stopped
}

func (t *timerEntry) Stop() bool {
	t.q.mu.Lock()
	defer t.q.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&t.q.items, t.index)
	return true
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at == h[j].at {
		return h[i].seq < h[j].seq
	}
	return h[i].at < h[j].at
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timerQueue orders pending timers by deadline, then by creation order.
type timerQueue struct {
	mu    sync.Mutex
	items timerHeap
	seq   uint64
}

func (q *timerQueue) push(at time.Duration, fn func()) *timerEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	e := &timerEntry{q: q, at: at, seq: q.seq, fn: fn}
	heap.Push(&q.items, e)
	return e
}

// popDue removes and returns the earliest timer due at or before now.
func (q *timerQueue) popDue(now time.Duration) *timerEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || q.items[0].at > now {
		return nil
	}
	return heap.Pop(&q.items).(*timerEntry)
}

func (q *timerQueue) next() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0, false
	}
	return q.items[0].at, true
}

func (q *timerQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// RealtimeScheduler runs callbacks on a single goroutine against a clock,
// the wall clock unless WithClock says otherwise.
type RealtimeScheduler struct {
	clock clockwork.Clock
	start time.Time
	queue timerQueue
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// RealtimeOption configures a RealtimeScheduler.
type RealtimeOption func(*RealtimeScheduler)

// WithClock drives the scheduler from c, e.g. a clockwork fake clock.
func WithClock(c clockwork.Clock) RealtimeOption {
	return func(s *RealtimeScheduler) { s.clock = c }
}

func NewRealtimeScheduler(opts ...RealtimeOption) *RealtimeScheduler {
	s := &RealtimeScheduler{
		clock: clockwork.NewRealClock(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.clock.Now()
	go s.loop()
	return s
}

func (s *RealtimeScheduler) Now() time.Duration {
	return s.clock.Since(s.start)
}

func (s *RealtimeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	e := s.queue.push(s.Now()+d, fn)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return e
}

// Pending is the number of timers that have neither fired nor been stopped.
func (s *RealtimeScheduler) Pending() int {
	return s.queue.len()
}

// Close stops the loop. Pending timers never fire.
func (s *RealtimeScheduler) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *RealtimeScheduler) loop() {
	var timer clockwork.Timer
	for {
		for e := s.queue.popDue(s.Now()); e != nil; e = s.queue.popDue(s.Now()) {
			select {
			case <-s.done:
				return
			default:
			}
			e.fn()
		}

		var fire <-chan time.Time
		if at, ok := s.queue.next(); ok {
			wait := at - s.Now()
			if timer == nil {
				timer = s.clock.NewTimer(wait)
			} else {
				timer.Reset(wait)
			}
			fire = timer.Chan()
		}

		select {
		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
			if timer != nil && !timer.Stop() {
				select {
				case <-timer.Chan():
				default:
				}
			}
		case <-fire:
		}
	}
}

// ManualScheduler is a deterministic Scheduler whose clock only moves on Advance.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	queue timerQueue
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	return s.queue.push(s.Now()+d, fn)
}

// Advance moves the clock forward by d, firing every timer that falls due in
// deadline order. The clock reads each timer's deadline while it runs, and
// timers scheduled by callbacks fire too if they fall inside the window.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		e := s.queue.popDue(target)
		if e == nil {
			break
		}
		s.mu.Lock()
		if e.at > s.now {
			s.now = e.at
		}
		s.mu.Unlock()
		e.fn()
	}

	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
}

// Pending is the number of timers that have neither fired nor been stopped.
func (s *ManualScheduler) Pending() int {
	return s.queue.len()
}

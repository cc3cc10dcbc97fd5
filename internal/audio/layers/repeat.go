package layers

import (
	"sync"
	"time"

	"ambient-novel/internal/audio/engine"
)

// RepeatingTask runs work, waits next(), runs it again, and so on until Stop.
// It owns at most one pending timer. A firing that was already under way when
// Stop was called sees the stopped flag and does nothing.
type RepeatingTask struct {
	mu      sync.Mutex
	sched   engine.Scheduler
	next    func() time.Duration
	work    func()
	timer   engine.Timer
	started bool
	stopped bool
	runs    int
}

func NewRepeatingTask(sched engine.Scheduler, next func() time.Duration, work func()) *RepeatingTask {
	return &RepeatingTask{sched: sched, next: next, work: work}
}

// Start schedules the first run after next(). Starting twice is a no-op.
func (t *RepeatingTask) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.stopped {
		return
	}
	t.started = true
	t.timer = t.sched.AfterFunc(t.next(), t.fire)
}

// Stop cancels the pending run. It is idempotent.
func (t *RepeatingTask) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Runs is how many times work has run.
func (t *RepeatingTask) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

func (t *RepeatingTask) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.runs++
	t.mu.Unlock()

	t.work()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timer = t.sched.AfterFunc(t.next(), t.fire)
}

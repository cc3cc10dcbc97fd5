// Package layers turns declarative soundscape specs into live, independently
// faded audio layers.
package layers

import (
	"sync"

	"ambient-novel/internal/audio/engine"
)

// Layer is one live sound source of the current soundscape. It is owned by
// the ambient manager; Stop is idempotent.
type Layer interface {
	Key() string
	// TargetGain is the level the layer is faded in to.
	TargetGain() float64
	// Gain is the layer's own volume, starting at 0.
	Gain() *engine.Param
	Stop()
	Stopped() bool
}

// base carries the parts every layer kind shares: its output gain routed into
// the master bus and a one-shot stop.
type base struct {
	key    string
	target float64
	out    *engine.Gain

	mu      sync.Mutex
	stopped bool
	onStop  []func()
}

func (b *base) Key() string         { return b.key }
func (b *base) TargetGain() float64 { return b.target }
func (b *base) Gain() *engine.Param { return b.out.Param() }

func (b *base) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

func (b *base) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	hooks := b.onStop
	b.onStop = nil
	b.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	b.out.Disconnect()
}

// whenStopped registers fn to run on the first Stop.
func (b *base) whenStopped(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStop = append(b.onStop, fn)
}

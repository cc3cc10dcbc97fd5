// Package engine is a small audio processing graph: automatable gains mixing
// procedural sources into one master bus, rendered on demand as PCM.
//
// An Engine is constructed and disposed explicitly; there is no process-wide
// instance. Every engine owns exactly one master gain.
package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"ambient-novel/internal/domain"

	"go.uber.org/zap"
)

// State of an engine.
type State string

const (
	StateSuspended State = "suspended"
	StateRunning   State = "running"
	StateClosed    State = "closed"
)

// Bytes per rendered frame: two channels of signed 16-bit little-endian.
const FrameSize = 4

// Config of an Engine.
type Config struct {
	SampleRate int
	MasterGain float64
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithResumeHook is called by Resume before the engine starts running, e.g. to
// (re)start an output device. A hook error leaves the engine suspended.
func WithResumeHook(fn func() error) Option {
	return func(e *Engine) { e.onResume = fn }
}

type Engine struct {
	mu         sync.Mutex
	sampleRate int
	sched      Scheduler
	state      State
	master     *Gain
	renderTime float64
	onResume   func() error
	logger     *zap.Logger
}

// New creates a suspended engine. Resume must be called before it renders
// anything other than silence.
func New(cfg Config, sched Scheduler, opts ...Option) *Engine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	e := &Engine{
		sampleRate: cfg.SampleRate,
		sched:      sched,
		state:      StateSuspended,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("AudioEngine")
	e.master = e.newGain(cfg.MasterGain)
	return e
}

// Master is the single gain every layer routes through.
func (e *Engine) Master() *Gain {
	return e.master
}

// NewGain creates an unconnected gain node.
func (e *Engine) NewGain(v float64) *Gain {
	return e.newGain(v)
}

func (e *Engine) newGain(v float64) *Gain {
	return &Gain{e: e, param: newParam(e.CurrentTime, v)}
}

func (e *Engine) Scheduler() Scheduler {
	return e.sched
}

func (e *Engine) SampleRate() int {
	return e.sampleRate
}

// CurrentTime is the engine clock in seconds.
func (e *Engine) CurrentTime() float64 {
	return e.sched.Now().Seconds()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Resume starts rendering. Resuming a running engine is a no-op.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateClosed:
		return domain.ErrEngineClosed
	case StateRunning:
		return nil
	}
	if e.onResume != nil {
		if err := e.onResume(); err != nil {
			return fmt.Errorf("resume audio engine: %w", err)
		}
	}
	e.state = StateRunning
	return nil
}

// Suspend makes Read produce silence. The graph is kept.
func (e *Engine) Suspend() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return domain.ErrEngineClosed
	}
	e.state = StateSuspended
	return nil
}

// Close releases the graph. Closing twice is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return nil
	}
	e.state = StateClosed
	e.master.inputs = nil
	e.logger.Debug("Audio engine closed")
	return nil
}

// Read renders interleaved stereo 16-bit little-endian PCM. A partial frame at
// the end of p is left untouched. After Close it returns io.EOF.
func (e *Engine) Read(p []byte) (int, error) {
	frames := len(p) / FrameSize
	if frames == 0 {
		return 0, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateClosed:
		return 0, io.EOF
	case StateSuspended:
		clear(p[:frames*FrameSize])
		return frames * FrameSize, nil
	}

	mono := make([]float64, frames)
	e.render(mono)
	for i, s := range mono {
		v := int16(math.Max(-1, math.Min(1, s)) * math.MaxInt16)
		binary.LittleEndian.PutUint16(p[i*FrameSize:], uint16(v))
		binary.LittleEndian.PutUint16(p[i*FrameSize+2:], uint16(v))
	}
	return frames * FrameSize, nil
}

// Render fills out with mono samples of the master bus regardless of state.
func (e *Engine) Render(out []float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return domain.ErrEngineClosed
	}
	e.render(out)
	return nil
}

func (e *Engine) render(out []float64) {
	dt := 1 / float64(e.sampleRate)
	t0 := math.Max(e.renderTime, e.CurrentTime())
	e.master.Render(out, t0, dt)
	e.renderTime = t0 + float64(len(out))*dt
}

// Gain scales the sum of its inputs by an automatable param.
type Gain struct {
	e      *Engine
	param  *Param
	dest   *Gain
	inputs []Source

	mix, tmp, vals []float64
}

var _ Source = (*Gain)(nil)

var errClosed = errors.New("gain belongs to a closed engine")

func (g *Gain) Param() *Param {
	return g.param
}

// Connect routes g into dest, leaving any previous destination.
func (g *Gain) Connect(dest *Gain) error {
	if dest == g {
		return fmt.Errorf("connect gain to itself")
	}
	g.e.mu.Lock()
	defer g.e.mu.Unlock()
	if g.e.state == StateClosed {
		return errClosed
	}
	g.detach()
	dest.inputs = append(dest.inputs, g)
	g.dest = dest
	return nil
}

// Disconnect removes g from its destination. It is safe to call repeatedly.
func (g *Gain) Disconnect() {
	g.e.mu.Lock()
	defer g.e.mu.Unlock()
	g.detach()
}

// Expiring is a source that knows when it has nothing left to play.
type Expiring interface {
	ExpiredAt(t float64) bool
}

// Play adds a source input. Finished sources are dropped while rendering, and
// expired ones also here, so inputs stay bounded when nothing renders.
func (g *Gain) Play(src Source) error {
	now := g.e.CurrentTime()
	g.e.mu.Lock()
	defer g.e.mu.Unlock()
	if g.e.state == StateClosed {
		return errClosed
	}
	live := g.inputs[:0]
	for _, in := range g.inputs {
		if x, ok := in.(Expiring); ok && x.ExpiredAt(now) {
			continue
		}
		live = append(live, in)
	}
	clear(g.inputs[len(live):])
	g.inputs = append(live, src)
	return nil
}

// Connected reports whether g is routed to a destination.
func (g *Gain) Connected() bool {
	g.e.mu.Lock()
	defer g.e.mu.Unlock()
	return g.dest != nil
}

// Inputs is the number of live inputs.
func (g *Gain) Inputs() int {
	g.e.mu.Lock()
	defer g.e.mu.Unlock()
	return len(g.inputs)
}

func (g *Gain) detach() {
	if g.dest == nil {
		return
	}
	ins := g.dest.inputs
	for i, in := range ins {
		if in == Source(g) {
			g.dest.inputs = append(ins[:i], ins[i+1:]...)
			break
		}
	}
	g.dest = nil
}

// Render is called with the engine lock held.
func (g *Gain) Render(out []float64, t0, dt float64) bool {
	n := len(out)
	g.mix = grow(g.mix, n)
	g.tmp = grow(g.tmp, n)
	g.vals = grow(g.vals, n)
	clear(g.mix)

	live := g.inputs[:0]
	for _, in := range g.inputs {
		alive := in.Render(g.tmp, t0, dt)
		for i, s := range g.tmp {
			g.mix[i] += s
		}
		if alive {
			live = append(live, in)
		} else if sub, ok := in.(*Gain); ok {
			sub.dest = nil
		}
	}
	clear(g.inputs[len(live):])
	g.inputs = live

	g.param.fill(g.vals, t0, dt)
	for i := range out {
		out[i] = g.mix[i] * g.vals[i]
	}
	return true
}

func grow(b []float64, n int) []float64 {
	if cap(b) < n {
		return make([]float64, n)
	}
	return b[:n]
}

package engine

import (
	"sort"
	"sync"
)

type eventKind int

const (
	eventSet eventKind = iota
	eventLinearRamp
)

type paramEvent struct {
	kind  eventKind
	time  float64
	value float64
}

// Param is an automatable value such as a gain. Times are engine seconds.
//
// A set event holds its value from its time on. A linear ramp event reaches its
// value at its time, interpolating from the previous event (or the initial
// value at time 0 when there is none).
type Param struct {
	mu      sync.Mutex
	clock   func() float64
	initial float64
	events  []paramEvent
}

func newParam(clock func() float64, v float64) *Param {
	return &Param{clock: clock, initial: v}
}

// Value is the value at the engine's current time.
func (p *Param) Value() float64 {
	return p.ValueAt(p.clock())
}

func (p *Param) ValueAt(t float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valueAt(t)
}

// SetValueAtTime jumps to v at time t.
func (p *Param) SetValueAtTime(v, t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.insert(paramEvent{kind: eventSet, time: t, value: v})
}

// LinearRampToValueAtTime ramps from the previous event to v, arriving at t.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.insert(paramEvent{kind: eventLinearRamp, time: t, value: v})
}

// CancelScheduledValues drops every event at or after t.
func (p *Param) CancelScheduledValues(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time >= t })
	p.events = p.events[:i]
}

// FadeTo cancels pending automation, holds the value the param has at now and
// ramps linearly to target over dur seconds. An interrupted fade therefore
// continues from wherever it had got to instead of jumping.
func (p *Param) FadeTo(target, now, dur float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := p.valueAt(now)
	p.initial = start
	p.events = p.events[:0]
	p.events = append(p.events, paramEvent{kind: eventSet, time: now, value: start})
	if dur <= 0 {
		p.events[0].value = target
		p.initial = target
		return
	}
	p.events = append(p.events, paramEvent{kind: eventLinearRamp, time: now + dur, value: target})
}

// Target is the value the param settles on once all automation has run.
func (p *Param) Target() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return p.initial
	}
	return p.events[len(p.events)-1].value
}

// fill writes the value of each sample time t0, t0+dt, ... into out and
// forgets events that can no longer influence times after the block.
func (p *Param) fill(out []float64, t0, dt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		for i := range out {
			out[i] = p.initial
		}
		return
	}
	for i := range out {
		out[i] = p.valueAt(t0 + float64(i)*dt)
	}
	p.compact(t0 + float64(len(out))*dt)
}

func (p *Param) insert(ev paramEvent) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > ev.time })
	p.events = append(p.events, paramEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = ev
}

func (p *Param) compact(t float64) {
	n := 0
	for n+1 < len(p.events) && p.events[n+1].time <= t {
		n++
	}
	if n == 0 {
		return
	}
	p.initial = p.events[n-1].value
	p.events = append(p.events[:0], p.events[n:]...)
}

func (p *Param) valueAt(t float64) float64 {
	prevTime, prevValue := 0.0, p.initial
	for _, ev := range p.events {
		if ev.time <= t {
			prevTime, prevValue = ev.time, ev.value
			continue
		}
		if ev.kind == eventLinearRamp {
			span := ev.time - prevTime
			if span <= 0 {
				return ev.value
			}
			frac := (t - prevTime) / span
			return prevValue + (ev.value-prevValue)*frac
		}
		return prevValue
	}
	return prevValue
}

package engine

import (
	"math"
	"math/rand"
)

// Source produces mono samples. Render overwrites out with the samples for
// times t0, t0+dt, ... and returns false once the source has finished for good;
// finished sources are disconnected by their gain.
type Source interface {
	Render(out []float64, t0, dt float64) bool
}

// Waveform of an oscillator.
type Waveform string

const (
	WaveSine     Waveform = "sine"
	WaveTriangle Waveform = "triangle"
	WaveSawtooth Waveform = "sawtooth"
)

func wave(w Waveform, phase float64) float64 {
	switch w {
	case WaveTriangle:
		return 1 - 4*math.Abs(phase-0.5)
	case WaveSawtooth:
		return 2*phase - 1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Noise is uniform white noise in [-1, 1).
type Noise struct {
	rng *rand.Rand
}

func NewNoise(rng *rand.Rand) *Noise {
	return &Noise{rng: rng}
}

func (n *Noise) Render(out []float64, _, _ float64) bool {
	for i := range out {
		out[i] = n.rng.Float64()*2 - 1
	}
	return true
}

// FilterType of a Biquad.
type FilterType string

const (
	LowPass  FilterType = "lowpass"
	BandPass FilterType = "bandpass"
	HighPass FilterType = "highpass"
)

// Biquad is a second-order IIR filter (RBJ cookbook coefficients).
type Biquad struct {
	src  Source
	typ  FilterType
	freq float64
	q    float64

	fs                 float64
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func NewBiquad(src Source, typ FilterType, freq, q float64) *Biquad {
	if q <= 0 {
		q = math.Sqrt2 / 2
	}
	return &Biquad{src: src, typ: typ, freq: freq, q: q}
}

func (f *Biquad) design(fs float64) {
	f.fs = fs
	freq := math.Min(f.freq, fs*0.45)
	w0 := 2 * math.Pi * freq / fs
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * f.q)

	var b0, b1, b2 float64
	switch f.typ {
	case BandPass:
		b0, b1, b2 = alpha, 0, -alpha
	case HighPass:
		b0, b1, b2 = (1+cosw)/2, -(1 + cosw), (1+cosw)/2
	default:
		b0, b1, b2 = (1-cosw)/2, 1-cosw, (1-cosw)/2
	}
	a0 := 1 + alpha
	f.b0, f.b1, f.b2 = b0/a0, b1/a0, b2/a0
	f.a1, f.a2 = -2*cosw/a0, (1-alpha)/a0
}

func (f *Biquad) Render(out []float64, t0, dt float64) bool {
	alive := f.src.Render(out, t0, dt)
	if fs := 1 / dt; fs != f.fs {
		f.design(fs)
	}
	for i, x := range out {
		y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
		f.x2, f.x1 = f.x1, x
		f.y2, f.y1 = f.y1, y
		out[i] = y
	}
	return alive
}

// Oscillator is a free-running periodic source.
type Oscillator struct {
	wave  Waveform
	freq  float64
	phase float64
}

func NewOscillator(w Waveform, freq float64) *Oscillator {
	return &Oscillator{wave: w, freq: freq}
}

func (o *Oscillator) Render(out []float64, _, dt float64) bool {
	step := o.freq * dt
	for i := range out {
		out[i] = wave(o.wave, o.phase)
		o.phase += step
		o.phase -= math.Floor(o.phase)
	}
	return true
}

// Tremolo scales src by 1 - depth*(0.5+0.5*sin(2*pi*rate*t)), giving slow
// swells such as wind gusts or a breathing pad.
type Tremolo struct {
	src   Source
	rate  float64
	depth float64
	phase float64
}

func NewTremolo(src Source, rate, depth float64, phase float64) *Tremolo {
	return &Tremolo{src: src, rate: rate, depth: math.Max(0, math.Min(1, depth)), phase: phase}
}

func (m *Tremolo) Render(out []float64, t0, dt float64) bool {
	alive := m.src.Render(out, t0, dt)
	step := m.rate * dt
	for i := range out {
		out[i] *= 1 - m.depth*(0.5+0.5*math.Sin(2*math.Pi*m.phase))
		m.phase += step
		m.phase -= math.Floor(m.phase)
	}
	return alive
}

// Voice is a single enveloped tone: a linear attack to Peak, then an
// exponential decay reaching silence at Start+Duration. The pitch glides
// exponentially from Freq to EndFreq over the same span.
type Voice struct {
	Wave     Waveform
	Freq     float64
	EndFreq  float64
	Peak     float64
	Start    float64
	Attack   float64
	Duration float64

	phase float64
}

// ExpiredAt reports whether the voice is silent from t on.
func (v *Voice) ExpiredAt(t float64) bool {
	return t >= v.Start+v.Duration
}

func (v *Voice) Render(out []float64, t0, dt float64) bool {
	end := v.Start + v.Duration
	endFreq := v.EndFreq
	if endFreq <= 0 {
		endFreq = v.Freq
	}
	for i := range out {
		t := t0 + float64(i)*dt
		if t < v.Start || t >= end || v.Duration <= 0 {
			out[i] = 0
			continue
		}
		rel := t - v.Start
		frac := rel / v.Duration
		freq := v.Freq * math.Pow(endFreq/v.Freq, frac)

		var env float64
		if rel < v.Attack {
			env = v.Peak * rel / v.Attack
		} else {
			decay := (rel - v.Attack) / math.Max(v.Duration-v.Attack, 1e-6)
			// -60dB at the end of the voice
			env = v.Peak * math.Pow(0.001, decay)
		}

		out[i] = env * wave(v.Wave, v.phase)
		v.phase += freq * dt
		v.phase -= math.Floor(v.phase)
	}
	return t0+float64(len(out))*dt < end
}

// BufferPlayer plays decoded mono samples already at the engine rate.
type BufferPlayer struct {
	samples []float32
	loop    bool
	pos     int
}

func NewBufferPlayer(samples []float32, loop bool) *BufferPlayer {
	return &BufferPlayer{samples: samples, loop: loop}
}

func (b *BufferPlayer) Render(out []float64, _, _ float64) bool {
	n := len(b.samples)
	for i := range out {
		if b.pos >= n {
			if !b.loop || n == 0 {
				clear(out[i:])
				return false
			}
			b.pos = 0
		}
		out[i] = float64(b.samples[b.pos])
		b.pos++
	}
	return b.loop || b.pos < n
}

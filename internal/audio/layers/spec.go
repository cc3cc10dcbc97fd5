package layers

import (
	"fmt"
	"math/rand"

	"ambient-novel/internal/audio/engine"
)

// Kind selects which generator a Spec describes.
type Kind string

const (
	KindNoiseBand Kind = "noise-band"
	KindPeriodic  Kind = "periodic"
	KindSustained Kind = "sustained"
	KindStream    Kind = "stream"
)

// Range is an inclusive interval a generator draws random values from.
type Range struct {
	Min float64
	Max float64
}

func (r Range) Pick(rng *rand.Rand) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

func (r Range) valid(positive bool) bool {
	if r.Max < r.Min {
		return false
	}
	if positive && r.Min <= 0 {
		return false
	}
	return true
}

// NoiseBand is filtered white noise (wind, water, surf) with an optional slow
// swell.
type NoiseBand struct {
	Filter     engine.FilterType
	Cutoff     float64 // Hz
	Q          float64
	SwellRate  float64 // Hz, 0 disables the swell
	SwellDepth float64 // 0..1
}

// Periodic fires short enveloped tones (bird calls, bells, drips) at random
// intervals until stopped.
type Periodic struct {
	Wave     engine.Waveform
	Pitch    Range   // Hz at the start of an event
	Glide    float64 // end pitch as a ratio of the start pitch; 0 or 1 is flat
	Peak     Range   // event peak gain, 0..1
	Attack   float64 // seconds
	Length   Range   // seconds
	Interval Range   // seconds between events
	Burst    int     // events per firing, at least 1
}

// Sustained is a drone or pad built from detuned oscillators.
type Sustained struct {
	Wave        engine.Waveform
	Frequencies []float64
	Detune      float64 // cents, applied as a +/- pair per frequency
	LFORate     float64 // Hz
	LFODepth    float64 // 0..1
}

// Stream plays a decoded audio asset. A load failure leaves the layer silent.
type Stream struct {
	Asset string
	Loop  bool
}

// Spec declares one layer of an environment. Exactly the payload matching
// Kind must be set; Gain is the level the layer is faded in to.
type Spec struct {
	Key       string
	Kind      Kind
	Gain      float64
	Noise     *NoiseBand
	Periodic  *Periodic
	Sustained *Sustained
	Stream    *Stream
}

func (s Spec) validate() error {
	if s.Key == "" {
		return fmt.Errorf("layer without key")
	}
	if s.Gain < 0 || s.Gain > 1 {
		return fmt.Errorf("layer %q: gain %.2f out of [0,1]", s.Key, s.Gain)
	}
	switch s.Kind {
	case KindNoiseBand:
		if s.Noise == nil {
			return fmt.Errorf("layer %q: noise-band without parameters", s.Key)
		}
		if s.Noise.Cutoff <= 0 || s.Noise.SwellDepth < 0 || s.Noise.SwellDepth > 1 {
			return fmt.Errorf("layer %q: invalid noise parameters", s.Key)
		}
	case KindPeriodic:
		p := s.Periodic
		if p == nil {
			return fmt.Errorf("layer %q: periodic without parameters", s.Key)
		}
		if !p.Pitch.valid(true) || !p.Length.valid(true) || !p.Interval.valid(true) || !p.Peak.valid(false) || p.Peak.Max > 1 {
			return fmt.Errorf("layer %q: invalid periodic ranges", s.Key)
		}
		if p.Attack < 0 || p.Attack >= p.Length.Min {
			return fmt.Errorf("layer %q: attack must be shorter than the event", s.Key)
		}
	case KindSustained:
		if s.Sustained == nil || len(s.Sustained.Frequencies) == 0 {
			return fmt.Errorf("layer %q: sustained without frequencies", s.Key)
		}
		for _, f := range s.Sustained.Frequencies {
			if f <= 0 {
				return fmt.Errorf("layer %q: non-positive frequency", s.Key)
			}
		}
	case KindStream:
		if s.Stream == nil || s.Stream.Asset == "" {
			return fmt.Errorf("layer %q: stream without asset", s.Key)
		}
	default:
		return fmt.Errorf("layer %q: unknown kind %q", s.Key, s.Kind)
	}
	return nil
}

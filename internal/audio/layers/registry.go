package layers

import (
	"fmt"
	"sort"

	"ambient-novel/internal/audio/engine"
	"ambient-novel/internal/domain"

	"go.uber.org/multierr"
)

// Registry maps an environment to the ordered layer specs of its soundscape.
// Environments without an entry are silent.
type Registry struct {
	table map[domain.Environment][]Spec
}

func NewRegistry(table map[domain.Environment][]Spec) *Registry {
	r := &Registry{table: make(map[domain.Environment][]Spec, len(table))}
	for env, specs := range table {
		r.table[env] = append([]Spec(nil), specs...)
	}
	return r
}

// Lookup returns the specs for env, or nil when env has no soundscape.
func (r *Registry) Lookup(env domain.Environment) []Spec {
	specs := r.table[env]
	if len(specs) == 0 {
		return nil
	}
	return append([]Spec(nil), specs...)
}

// Environments lists the mapped environments in name order.
func (r *Registry) Environments() []domain.Environment {
	out := make([]domain.Environment, 0, len(r.table))
	for env := range r.table {
		out = append(out, env)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate reports duplicate keys within an environment and malformed specs.
func (r *Registry) Validate() error {
	var errs error
	for _, env := range r.Environments() {
		seen := make(map[string]struct{})
		for _, s := range r.table[env] {
			if _, dup := seen[s.Key]; dup {
				errs = multierr.Append(errs, fmt.Errorf("environment %q: duplicate layer key %q", env, s.Key))
			}
			seen[s.Key] = struct{}{}
			if err := s.validate(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("environment %q: %w", env, err))
			}
		}
	}
	return errs
}

// Shared layer definitions. A key keeps the sound it was started with when a
// following environment reuses the key.
var (
	wind = Spec{Key: "wind", Kind: KindNoiseBand, Gain: 0.12, Noise: &NoiseBand{
		Filter: engine.LowPass, Cutoff: 500, Q: 0.8, SwellRate: 0.08, SwellDepth: 0.6,
	}}
	gale = Spec{Key: "gale", Kind: KindNoiseBand, Gain: 0.16, Noise: &NoiseBand{
		Filter: engine.BandPass, Cutoff: 700, Q: 0.6, SwellRate: 0.15, SwellDepth: 0.8,
	}}
	leaves = Spec{Key: "leaves", Kind: KindNoiseBand, Gain: 0.04, Noise: &NoiseBand{
		Filter: engine.HighPass, Cutoff: 3500, Q: 0.7, SwellRate: 0.2, SwellDepth: 0.7,
	}}
	stream = Spec{Key: "water", Kind: KindNoiseBand, Gain: 0.08, Noise: &NoiseBand{
		Filter: engine.BandPass, Cutoff: 1200, Q: 0.5, SwellRate: 0.3, SwellDepth: 0.2,
	}}
	surf = Spec{Key: "waves", Kind: KindNoiseBand, Gain: 0.15, Noise: &NoiseBand{
		Filter: engine.LowPass, Cutoff: 600, Q: 0.7, SwellRate: 0.1, SwellDepth: 0.9,
	}}
	rumble = Spec{Key: "rumble", Kind: KindNoiseBand, Gain: 0.1, Noise: &NoiseBand{
		Filter: engine.LowPass, Cutoff: 180, Q: 1, SwellRate: 0.05, SwellDepth: 0.3,
	}}
	fire = Spec{Key: "fire", Kind: KindNoiseBand, Gain: 0.07, Noise: &NoiseBand{
		Filter: engine.BandPass, Cutoff: 2500, Q: 1.5, SwellRate: 3, SwellDepth: 0.5,
	}}

	birds = Spec{Key: "birds", Kind: KindPeriodic, Gain: 0.25, Periodic: &Periodic{
		Wave: engine.WaveSine, Pitch: Range{2000, 4000}, Glide: 1.3, Peak: Range{0.2, 0.5},
		Attack: 0.01, Length: Range{0.08, 0.2}, Interval: Range{1.5, 5}, Burst: 3,
	}}
	gulls = Spec{Key: "gulls", Kind: KindPeriodic, Gain: 0.15, Periodic: &Periodic{
		Wave: engine.WaveTriangle, Pitch: Range{900, 1400}, Glide: 0.7, Peak: Range{0.2, 0.4},
		Attack: 0.05, Length: Range{0.3, 0.6}, Interval: Range{5, 12}, Burst: 2,
	}}
	insects = Spec{Key: "insects", Kind: KindPeriodic, Gain: 0.05, Periodic: &Periodic{
		Wave: engine.WaveSawtooth, Pitch: Range{4000, 5500}, Glide: 1, Peak: Range{0.1, 0.3},
		Attack: 0.005, Length: Range{0.03, 0.06}, Interval: Range{0.4, 2}, Burst: 4,
	}}
	drips = Spec{Key: "drips", Kind: KindPeriodic, Gain: 0.2, Periodic: &Periodic{
		Wave: engine.WaveSine, Pitch: Range{800, 1600}, Glide: 0.5, Peak: Range{0.3, 0.6},
		Attack: 0.002, Length: Range{0.05, 0.12}, Interval: Range{0.8, 3}, Burst: 1,
	}}
	bells = Spec{Key: "bells", Kind: KindPeriodic, Gain: 0.18, Periodic: &Periodic{
		Wave: engine.WaveSine, Pitch: Range{300, 600}, Glide: 1, Peak: Range{0.3, 0.5},
		Attack: 0.01, Length: Range{2.5, 4}, Interval: Range{6, 12}, Burst: 1,
	}}
	chimes = Spec{Key: "chimes", Kind: KindPeriodic, Gain: 0.12, Periodic: &Periodic{
		Wave: engine.WaveTriangle, Pitch: Range{1000, 2200}, Glide: 1, Peak: Range{0.2, 0.4},
		Attack: 0.005, Length: Range{1, 2}, Interval: Range{2, 6}, Burst: 2,
	}}
	creaks = Spec{Key: "creaks", Kind: KindPeriodic, Gain: 0.06, Periodic: &Periodic{
		Wave: engine.WaveSawtooth, Pitch: Range{90, 160}, Glide: 1.4, Peak: Range{0.2, 0.4},
		Attack: 0.1, Length: Range{0.5, 1.2}, Interval: Range{4, 10}, Burst: 1,
	}}

	drone = Spec{Key: "drone", Kind: KindSustained, Gain: 0.08, Sustained: &Sustained{
		Wave: engine.WaveSine, Frequencies: []float64{55, 82.5}, Detune: 6, LFORate: 0.05, LFODepth: 0.4,
	}}
	pad = Spec{Key: "pad", Kind: KindSustained, Gain: 0.06, Sustained: &Sustained{
		Wave: engine.WaveTriangle, Frequencies: []float64{220, 277.18, 329.63}, Detune: 8, LFORate: 0.1, LFODepth: 0.5,
	}}
	hum = Spec{Key: "hum", Kind: KindSustained, Gain: 0.05, Sustained: &Sustained{
		Wave: engine.WaveSine, Frequencies: []float64{110, 165, 220}, Detune: 4, LFORate: 0.07, LFODepth: 0.3,
	}}
)

// MusicKey is the key of the background music layer.
const MusicKey = "music"

// MusicSpec describes the looping background music layer.
func MusicSpec(asset string, gain float64) Spec {
	return Spec{Key: MusicKey, Kind: KindStream, Gain: gain, Stream: &Stream{Asset: asset, Loop: true}}
}

// DefaultRegistry is the shipped soundscape table. When music is non-nil it is
// appended to every mapped environment so it survives scene changes. Sky and
// desert have no soundscape.
func DefaultRegistry(music *Spec) *Registry {
	table := map[domain.Environment][]Spec{
		domain.EnvForest:   {wind, leaves, birds},
		domain.EnvClearing: {wind, birds, insects},
		domain.EnvCave:     {rumble, drips, drone},
		domain.EnvCliff:    {gale, gulls},
		domain.EnvTemple:   {drone, bells},
		domain.EnvSunrise:  {wind, birds, pad},
		domain.EnvRuins:    {gale, chimes},
		domain.EnvGorge:    {stream, wind, drips},
		domain.EnvSanctum:  {hum, chimes},
		domain.EnvGarden:   {stream, birds, insects},
		domain.EnvGrove:    {wind, leaves, birds, pad},
		domain.EnvMeadow:   {wind, birds, insects},
		domain.EnvShip:     {surf, creaks, gulls},
		domain.EnvCabin:    {fire, rumble, pad},
		domain.EnvBeach:    {surf, wind, gulls},
		domain.EnvAltar:    {hum, bells},
		domain.EnvOcean:    {surf, gale},
	}
	if music != nil {
		for env := range table {
			table[env] = append(table[env], *music)
		}
	}
	return NewRegistry(table)
}

package layers

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"ambient-novel/internal/assets"
	"ambient-novel/internal/audio/engine"

	"go.uber.org/zap"
)

// AssetLoader fetches a named audio asset decoded at sampleRate.
type AssetLoader interface {
	Load(ctx context.Context, name string, sampleRate int) (*assets.Clip, error)
}

// DefaultStreamFadeIn is how long a stream takes to rise from silence once
// its asset is attached.
const DefaultStreamFadeIn = 2500 * time.Millisecond

// Factory builds live layers from specs.
type Factory struct {
	loader  AssetLoader
	logger  *zap.Logger
	onError func(key string, err error)
	fadeIn  time.Duration

	mu   sync.Mutex
	seed *rand.Rand
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithSeed makes every random choice reproducible.
func WithSeed(seed int64) FactoryOption {
	return func(f *Factory) { f.seed = rand.New(rand.NewSource(seed)) }
}

// WithErrorHook is told about every swallowed layer error.
func WithErrorHook(fn func(key string, err error)) FactoryOption {
	return func(f *Factory) { f.onError = fn }
}

// WithStreamFadeIn sets how long an attached stream fades in from silence.
func WithStreamFadeIn(d time.Duration) FactoryOption {
	return func(f *Factory) { f.fadeIn = d }
}

// NewFactory creates a Factory. loader may be nil, in which case stream layers
// stay silent.
func NewFactory(loader AssetLoader, logger *zap.Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		loader: loader,
		logger: logger.Named("LayerFactory"),
		fadeIn: DefaultStreamFadeIn,
		seed:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) rng() *rand.Rand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return rand.New(rand.NewSource(f.seed.Int63()))
}

// Build creates the layer described by spec, routed into dest with its gain
// at 0. Periodic and stream layers start their background work immediately.
func (f *Factory) Build(e *engine.Engine, dest *engine.Gain, spec Spec) (Layer, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	out := e.NewGain(0)
	if err := out.Connect(dest); err != nil {
		return nil, fmt.Errorf("layer %q: %w", spec.Key, err)
	}
	b := &base{key: spec.Key, target: spec.Gain, out: out}

	var (
		l   Layer
		err error
	)
	switch spec.Kind {
	case KindNoiseBand:
		l, err = f.noise(b, spec.Noise)
	case KindPeriodic:
		l, err = f.periodic(e, b, spec.Periodic)
	case KindSustained:
		l, err = f.sustained(e, b, spec.Sustained)
	case KindStream:
		l = f.stream(e, b, spec.Stream)
	}
	if err != nil {
		out.Disconnect()
		return nil, fmt.Errorf("layer %q: %w", spec.Key, err)
	}
	return l, nil
}

func (f *Factory) noise(b *base, p *NoiseBand) (Layer, error) {
	var src engine.Source = engine.NewBiquad(engine.NewNoise(f.rng()), p.Filter, p.Cutoff, p.Q)
	if p.SwellRate > 0 && p.SwellDepth > 0 {
		src = engine.NewTremolo(src, p.SwellRate, p.SwellDepth, 0)
	}
	if err := b.out.Play(src); err != nil {
		return nil, err
	}
	return b, nil
}

func (f *Factory) sustained(e *engine.Engine, b *base, p *Sustained) (Layer, error) {
	voices := 2 * len(p.Frequencies)
	mix := e.NewGain(1 / float64(voices))
	ratio := math.Pow(2, p.Detune/1200)
	for _, freq := range p.Frequencies {
		for _, fr := range []float64{freq * ratio, freq / ratio} {
			if err := mix.Play(engine.NewOscillator(p.Wave, fr)); err != nil {
				return nil, err
			}
		}
	}
	var src engine.Source = mix
	if p.LFORate > 0 && p.LFODepth > 0 {
		src = engine.NewTremolo(mix, p.LFORate, p.LFODepth, 0.25)
	}
	if err := b.out.Play(src); err != nil {
		return nil, err
	}
	return b, nil
}

// PeriodicLayer fires randomized tone events until stopped.
type PeriodicLayer struct {
	*base
	task *RepeatingTask
}

// Events is how many times the layer has fired.
func (l *PeriodicLayer) Events() int {
	return l.task.Runs()
}

// Voices is the number of tone events still held by the layer.
func (l *PeriodicLayer) Voices() int {
	return l.out.Inputs()
}

func (f *Factory) periodic(e *engine.Engine, b *base, p *Periodic) (Layer, error) {
	var mu sync.Mutex
	rng := f.rng()
	pick := func(r Range) float64 {
		mu.Lock()
		defer mu.Unlock()
		return r.Pick(rng)
	}
	burst := p.Burst
	if burst < 1 {
		burst = 1
	}
	glide := p.Glide
	if glide <= 0 {
		glide = 1
	}

	next := func() time.Duration {
		return time.Duration(pick(p.Interval) * float64(time.Second))
	}
	work := func() {
		now := e.CurrentTime()
		offset := 0.0
		for i := 0; i < burst; i++ {
			length := pick(p.Length)
			freq := pick(p.Pitch)
			v := &engine.Voice{
				Wave:     p.Wave,
				Freq:     freq,
				EndFreq:  freq * glide,
				Peak:     pick(p.Peak),
				Start:    now + offset,
				Attack:   p.Attack,
				Duration: length,
			}
			if err := b.out.Play(v); err != nil {
				// Engine closed under us; the layer is about to be stopped.
				return
			}
			offset += length * (0.6 + pick(Range{0, 0.8}))
		}
	}

	l := &PeriodicLayer{base: b, task: NewRepeatingTask(e.Scheduler(), next, work)}
	b.whenStopped(l.task.Stop)
	l.task.Start()
	return l, nil
}

// LoadState of a stream layer.
type LoadState string

const (
	LoadLoading LoadState = "loading"
	LoadReady   LoadState = "ready"
	LoadFailed  LoadState = "failed"
)

// StreamLayer plays a decoded asset. It starts silent, loads in the
// background and either attaches the asset (ready) or stays silent (failed).
// An attached asset fades in from silence on its own gain, so a load that
// finishes after the layer's crossfade does not start abruptly.
// Stop cancels the load; a load finishing after Stop attaches nothing.
type StreamLayer struct {
	*base
	asset  string
	state  LoadState
	ready  chan struct{}
	cancel context.CancelFunc
}

func (l *StreamLayer) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Ready is closed once loading has finished, successfully or not.
func (l *StreamLayer) Ready() <-chan struct{} {
	return l.ready
}

func (f *Factory) stream(e *engine.Engine, b *base, p *Stream) Layer {
	sampleRate := e.SampleRate()
	ctx, cancel := context.WithCancel(context.Background())
	l := &StreamLayer{base: b, asset: p.Asset, state: LoadLoading, ready: make(chan struct{}), cancel: cancel}
	b.whenStopped(cancel)

	logger := f.logger.With(zap.String("layer", b.key), zap.String("asset", p.Asset))
	go func() {
		defer close(l.ready)
		defer cancel()

		if f.loader == nil {
			l.finish(LoadFailed)
			f.report(logger, b.key, fmt.Errorf("no asset loader configured"))
			return
		}
		clip, err := f.loader.Load(ctx, p.Asset, sampleRate)
		if err == nil && clip.SampleRate != sampleRate {
			err = fmt.Errorf("asset decoded at %d Hz, engine runs at %d Hz", clip.SampleRate, sampleRate)
		}
		if err != nil {
			l.finish(LoadFailed)
			f.report(logger, b.key, err)
			return
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.stopped {
			l.state = LoadFailed
			logger.Debug("Stream loaded after stop, discarding")
			return
		}
		fade := e.NewGain(0)
		if err := fade.Connect(l.out); err != nil {
			l.state = LoadFailed
			return
		}
		if err := fade.Play(engine.NewBufferPlayer(clip.Samples, p.Loop)); err != nil {
			fade.Disconnect()
			l.state = LoadFailed
			return
		}
		fade.Param().FadeTo(1, e.CurrentTime(), f.fadeIn.Seconds())
		l.state = LoadReady
		logger.Debug("Stream layer ready",
			zap.Int("samples", len(clip.Samples)),
			zap.Duration("length", clip.Duration()),
		)
	}()
	return l
}

func (l *StreamLayer) finish(s LoadState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

func (f *Factory) report(logger *zap.Logger, key string, err error) {
	logger.Warn("Audio layer failed, continuing silently", zap.Error(err))
	if f.onError != nil {
		f.onError(key, err)
	}
}

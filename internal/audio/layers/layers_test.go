package layers_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ambient-novel/internal/assets"
	"ambient-novel/internal/audio/engine"
	"ambient-novel/internal/audio/layers"
	"ambient-novel/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type loaderFunc func(ctx context.Context, name string) (*assets.Clip, error)

func (f loaderFunc) Load(ctx context.Context, name string, _ int) (*assets.Clip, error) {
	return f(ctx, name)
}

func setup(t *testing.T, loader layers.AssetLoader, opts ...layers.FactoryOption) (*engine.Engine, *engine.ManualScheduler, *layers.Factory) {
	t.Helper()
	sched := engine.NewManualScheduler()
	e := engine.New(engine.Config{SampleRate: 8000, MasterGain: 1}, sched)
	t.Cleanup(func() { _ = e.Close() })
	opts = append([]layers.FactoryOption{layers.WithSeed(7)}, opts...)
	return e, sched, layers.NewFactory(loader, zap.NewNop(), opts...)
}

func waitReady(t *testing.T, l *layers.StreamLayer) {
	t.Helper()
	select {
	case <-l.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("stream layer never finished loading")
	}
}

func TestDefaultRegistry(t *testing.T) {
	music := layers.MusicSpec("soothing-music.mp3", 0.3)
	reg := layers.DefaultRegistry(&music)
	require.NoError(t, reg.Validate())

	assert.Empty(t, reg.Lookup(domain.EnvSky))
	assert.Empty(t, reg.Lookup(domain.EnvDesert))
	assert.Empty(t, reg.Lookup("nowhere"))

	keys := func(env domain.Environment) []string {
		var out []string
		for _, s := range reg.Lookup(env) {
			out = append(out, s.Key)
		}
		return out
	}
	assert.Contains(t, keys(domain.EnvForest), "wind")
	assert.Contains(t, keys(domain.EnvClearing), "wind")
	assert.Contains(t, keys(domain.EnvTemple), "bells")
	for _, env := range reg.Environments() {
		assert.Contains(t, keys(env), layers.MusicKey, env)
	}

	noMusic := layers.DefaultRegistry(nil)
	assert.NotContains(t, func() []string {
		var out []string
		for _, s := range noMusic.Lookup(domain.EnvForest) {
			out = append(out, s.Key)
		}
		return out
	}(), layers.MusicKey)
}

func TestRegistry_Validate(t *testing.T) {
	dup := layers.Spec{Key: "hum", Kind: layers.KindSustained, Gain: 0.1,
		Sustained: &layers.Sustained{Frequencies: []float64{110}}}
	reg := layers.NewRegistry(map[domain.Environment][]layers.Spec{
		domain.EnvCave: {dup, dup},
		domain.EnvCliff: {
			{Key: "birds", Kind: layers.KindPeriodic, Gain: 0.2, Periodic: &layers.Periodic{
				Pitch: layers.Range{Min: 0, Max: 10}, Length: layers.Range{Min: 0.1, Max: 0.2},
				Interval: layers.Range{Min: 1, Max: 2}, Peak: layers.Range{Min: 0.1, Max: 0.2},
			}},
			{Key: "music", Kind: layers.KindStream, Gain: 2, Stream: &layers.Stream{Asset: "a.mp3"}},
		},
	})
	err := reg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate layer key "hum"`)
	assert.Contains(t, err.Error(), "invalid periodic ranges")
	assert.Contains(t, err.Error(), "out of [0,1]")
}

func TestBuild_StartsSilentAndStopsOnce(t *testing.T) {
	e, _, f := setup(t, nil)
	reg := layers.DefaultRegistry(nil)

	for _, spec := range reg.Lookup(domain.EnvGrove) {
		l, err := f.Build(e, e.Master(), spec)
		require.NoError(t, err)
		assert.Equal(t, spec.Key, l.Key())
		assert.Equal(t, spec.Gain, l.TargetGain())
		assert.Equal(t, 0.0, l.Gain().Value())

		l.Stop()
		l.Stop()
		assert.True(t, l.Stopped())
	}
	assert.Equal(t, 0, e.Master().Inputs())
}

func TestBuild_RejectsMalformedSpec(t *testing.T) {
	e, _, f := setup(t, nil)
	_, err := f.Build(e, e.Master(), layers.Spec{Key: "x", Kind: layers.KindNoiseBand, Gain: 0.1})
	require.Error(t, err)
	assert.Equal(t, 0, e.Master().Inputs())
}

func TestPeriodicLayer_SelfSchedulesUntilStopped(t *testing.T) {
	e, sched, f := setup(t, nil)
	spec := layers.Spec{Key: "drips", Kind: layers.KindPeriodic, Gain: 0.2, Periodic: &layers.Periodic{
		Wave: engine.WaveSine, Pitch: layers.Range{Min: 800, Max: 1600}, Glide: 0.5,
		Peak: layers.Range{Min: 0.3, Max: 0.6}, Attack: 0.002,
		Length: layers.Range{Min: 0.05, Max: 0.1}, Interval: layers.Range{Min: 1, Max: 2}, Burst: 1,
	}}
	l, err := f.Build(e, e.Master(), spec)
	require.NoError(t, err)
	p := l.(*layers.PeriodicLayer)

	assert.Equal(t, 1, sched.Pending())
	sched.Advance(10 * time.Second)
	events := p.Events()
	assert.GreaterOrEqual(t, events, 5)
	assert.LessOrEqual(t, events, 10)
	assert.Equal(t, 1, sched.Pending(), "exactly one pending firing")

	l.Stop()
	assert.Equal(t, 0, sched.Pending())
	sched.Advance(time.Minute)
	assert.Equal(t, events, p.Events())
}

func TestPeriodicLayer_VoicesStayBoundedWithoutOutput(t *testing.T) {
	e, sched, f := setup(t, nil)
	var insects layers.Spec
	for _, spec := range layers.DefaultRegistry(nil).Lookup(domain.EnvClearing) {
		if spec.Key == "insects" {
			insects = spec
		}
	}
	require.Equal(t, "insects", insects.Key)

	l, err := f.Build(e, e.Master(), insects)
	require.NoError(t, err)
	p := l.(*layers.PeriodicLayer)
	require.Equal(t, engine.StateSuspended, e.State())

	for i := 0; i < 60; i++ {
		sched.Advance(time.Minute)
		assert.LessOrEqual(t, p.Voices(), 8, "after %d minutes", i+1)
	}
	assert.Greater(t, p.Events(), 1000)
	l.Stop()
}

func TestRepeatingTask_StopInsideWork(t *testing.T) {
	sched := engine.NewManualScheduler()
	var task *layers.RepeatingTask
	task = layers.NewRepeatingTask(sched, func() time.Duration { return time.Second }, func() {
		if task.Runs() == 2 {
			task.Stop()
		}
	})
	task.Start()
	task.Start()

	sched.Advance(10 * time.Second)
	assert.Equal(t, 2, task.Runs())
	assert.Equal(t, 0, sched.Pending())
}

func TestStreamLayer_Ready(t *testing.T) {
	var asked atomic.Value
	loader := loaderFunc(func(_ context.Context, name string) (*assets.Clip, error) {
		asked.Store(name)
		return &assets.Clip{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 8000}, nil
	})
	e, _, f := setup(t, loader)

	l, err := f.Build(e, e.Master(), layers.MusicSpec("soothing-music.mp3", 0.3))
	require.NoError(t, err)
	s := l.(*layers.StreamLayer)
	waitReady(t, s)

	assert.Equal(t, layers.LoadReady, s.State())
	assert.Equal(t, "soothing-music.mp3", asked.Load())
	assert.Equal(t, 0.0, s.Gain().Value(), "loading never touches the gain")
	s.Stop()
}

func TestStreamLayer_FadesInWhenAttached(t *testing.T) {
	samples := make([]float32, 8000)
	for i := range samples {
		samples[i] = 1
	}
	loader := loaderFunc(func(context.Context, string) (*assets.Clip, error) {
		return &assets.Clip{Samples: samples, SampleRate: 8000}, nil
	})
	e, sched, f := setup(t, loader, layers.WithStreamFadeIn(2*time.Second))

	l, err := f.Build(e, e.Master(), layers.MusicSpec("soothing-music.mp3", 1))
	require.NoError(t, err)
	s := l.(*layers.StreamLayer)
	// The crossfade has already finished when the asset shows up.
	s.Gain().SetValueAtTime(1, 0)
	waitReady(t, s)
	require.Equal(t, layers.LoadReady, s.State())

	out := make([]float64, 80)
	require.NoError(t, e.Render(out))
	for _, v := range out {
		assert.Less(t, v, 0.01, "no jump to full level")
	}

	sched.Advance(3 * time.Second)
	require.NoError(t, e.Render(out))
	for _, v := range out {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
	s.Stop()
}

func TestStreamLayer_RejectsClipAtOtherRate(t *testing.T) {
	loader := loaderFunc(func(context.Context, string) (*assets.Clip, error) {
		return &assets.Clip{Samples: []float32{1}, SampleRate: 44100}, nil
	})
	var failures int
	e, _, f := setup(t, loader, layers.WithErrorHook(func(string, error) { failures++ }))

	l, err := f.Build(e, e.Master(), layers.MusicSpec("soothing-music.mp3", 0.3))
	require.NoError(t, err)
	s := l.(*layers.StreamLayer)
	waitReady(t, s)
	assert.Equal(t, layers.LoadFailed, s.State())
	assert.Equal(t, 1, failures)
	s.Stop()
}

func TestStreamLayer_FailureIsSilent(t *testing.T) {
	var reported []string
	loader := loaderFunc(func(context.Context, string) (*assets.Clip, error) {
		return nil, assets.ErrAssetNotFound
	})
	e, _, f := setup(t, loader, layers.WithErrorHook(func(key string, err error) {
		assert.True(t, errors.Is(err, assets.ErrAssetNotFound))
		reported = append(reported, key)
	}))

	l, err := f.Build(e, e.Master(), layers.MusicSpec("soothing-music.mp3", 0.3))
	require.NoError(t, err, "asset failures never surface from Build")
	s := l.(*layers.StreamLayer)
	waitReady(t, s)

	assert.Equal(t, layers.LoadFailed, s.State())
	assert.Equal(t, []string{layers.MusicKey}, reported)
	s.Stop()
	assert.True(t, s.Stopped())
}

func TestStreamLayer_StopWinsOverLateLoad(t *testing.T) {
	release := make(chan struct{})
	loader := loaderFunc(func(ctx context.Context, _ string) (*assets.Clip, error) {
		<-release
		return &assets.Clip{Samples: []float32{1}, SampleRate: 8000}, nil
	})
	e, _, f := setup(t, loader)

	l, err := f.Build(e, e.Master(), layers.MusicSpec("soothing-music.mp3", 0.3))
	require.NoError(t, err)
	s := l.(*layers.StreamLayer)
	assert.Equal(t, layers.LoadLoading, s.State())

	s.Stop()
	close(release)
	waitReady(t, s)

	assert.Equal(t, layers.LoadFailed, s.State())
	assert.Equal(t, 0, e.Master().Inputs())
}

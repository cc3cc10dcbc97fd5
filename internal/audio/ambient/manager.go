// Package ambient keeps the live audio layers of a session in step with the
// current environment, crossfading between soundscapes and handling mute.
package ambient

import (
	"sort"
	"sync"
	"time"

	"ambient-novel/internal/audio/engine"
	"ambient-novel/internal/audio/layers"
	"ambient-novel/internal/domain"

	"go.uber.org/zap"
)

// LayerBuilder creates live layers. *layers.Factory satisfies it.
type LayerBuilder interface {
	Build(e *engine.Engine, dest *engine.Gain, spec layers.Spec) (layers.Layer, error)
}

// Config holds fade timings and the nominal master level.
type Config struct {
	Crossfade  time.Duration
	MuteFade   time.Duration
	UnmuteFade time.Duration
	// StopMargin is waited after a fade-out before the layer is stopped.
	StopMargin time.Duration
	MasterGain float64
	StartMuted bool
}

func DefaultConfig() Config {
	return Config{
		Crossfade:  2500 * time.Millisecond,
		MuteFade:   500 * time.Millisecond,
		UnmuteFade: 800 * time.Millisecond,
		StopMargin: 100 * time.Millisecond,
		MasterGain: 1,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithErrorHook is told about every swallowed audio error.
func WithErrorHook(fn func(err error)) Option {
	return func(m *Manager) { m.onError = fn }
}

// Manager owns every layer of one engine. All methods are safe for concurrent
// use; audio failures are logged and never returned.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	engine   *engine.Engine
	registry *layers.Registry
	builder  LayerBuilder
	logger   *zap.Logger
	onError  func(error)

	env    domain.Environment
	hasEnv bool
	active map[string]layers.Layer
	fading map[layers.Layer]*pendingStop
	muted  bool
	closed bool
}

// pendingStop is the scheduled stop of one faded-out layer. Only the entry
// currently stored for the layer may stop it.
type pendingStop struct {
	timer engine.Timer
}

func New(e *engine.Engine, registry *layers.Registry, builder LayerBuilder, cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		engine:   e,
		registry: registry,
		builder:  builder,
		logger:   logger.Named("AmbientManager"),
		active:   make(map[string]layers.Layer),
		fading:   make(map[layers.Layer]*pendingStop),
	}
	for _, opt := range opts {
		opt(m)
	}
	if cfg.StartMuted {
		m.muted = true
		m.master().FadeTo(0, e.CurrentTime(), 0)
	} else {
		m.master().FadeTo(cfg.MasterGain, e.CurrentTime(), 0)
	}
	return m
}

func (m *Manager) master() *engine.Param {
	return m.engine.Master().Param()
}

// SetEnvironment makes env's soundscape the active one. Layers whose key is
// already playing keep playing untouched; new keys fade in first, then keys
// that are no longer wanted fade out and are stopped once silent. Repeating
// the current environment does nothing. An environment without layers
// silences everything.
func (m *Manager) SetEnvironment(env domain.Environment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || (m.hasEnv && env == m.env) {
		return
	}

	logger := m.logger.With(zap.String("from", string(m.env)), zap.String("to", string(env)))
	now := m.engine.CurrentTime()
	fade := m.cfg.Crossfade.Seconds()

	next := make(map[string]layers.Layer)
	for _, spec := range m.registry.Lookup(env) {
		if _, dup := next[spec.Key]; dup {
			continue
		}
		if l, ok := m.active[spec.Key]; ok {
			next[spec.Key] = l
			continue
		}
		l, err := m.builder.Build(m.engine, m.engine.Master(), spec)
		if err != nil {
			logger.Warn("Failed to start layer", zap.String("layer", spec.Key), zap.Error(err))
			m.reportError(err)
			continue
		}
		l.Gain().FadeTo(l.TargetGain(), now, fade)
		next[spec.Key] = l
	}

	var leaving []string
	for key, l := range m.active {
		if _, keep := next[key]; keep {
			continue
		}
		m.fadeOut(l, now)
		leaving = append(leaving, key)
	}

	m.active = next
	m.env = env
	m.hasEnv = true
	logger.Debug("Environment changed",
		zap.Strings("active", sortedKeys(next)),
		zap.Strings("fadingOut", leaving),
	)
}

// fadeOut ramps l to silence and schedules its stop. A newer fade-out of the
// same layer replaces the pending stop.
func (m *Manager) fadeOut(l layers.Layer, now float64) {
	l.Gain().FadeTo(0, now, m.cfg.Crossfade.Seconds())
	if prev, ok := m.fading[l]; ok {
		prev.timer.Stop()
	}
	p := &pendingStop{}
	p.timer = m.engine.Scheduler().AfterFunc(m.cfg.Crossfade+m.cfg.StopMargin, func() {
		m.finishFade(l, p)
	})
	m.fading[l] = p
}

func (m *Manager) finishFade(l layers.Layer, p *pendingStop) {
	m.mu.Lock()
	if m.fading[l] != p {
		m.mu.Unlock()
		return
	}
	delete(m.fading, l)
	m.mu.Unlock()

	l.Stop()
}

// SetMuted fades the master gain out, or resumes the engine and fades the
// master back to its nominal level. Layers are not touched.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || muted == m.muted {
		return
	}
	m.muted = muted
	now := m.engine.CurrentTime()

	if muted {
		m.master().FadeTo(0, now, m.cfg.MuteFade.Seconds())
		return
	}
	if err := m.engine.Resume(); err != nil {
		m.logger.Warn("Failed to resume audio engine", zap.Error(err))
		m.reportError(err)
	}
	m.master().FadeTo(m.cfg.MasterGain, now, m.cfg.UnmuteFade.Seconds())
}

// Teardown fades every active layer out and stops each one after its fade.
// It returns how long until the last layer has stopped.
func (m *Manager) Teardown() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}
	now := m.engine.CurrentTime()
	for _, l := range m.active {
		m.fadeOut(l, now)
	}
	m.active = make(map[string]layers.Layer)
	m.env = ""
	m.hasEnv = false
	return m.cfg.Crossfade + m.cfg.StopMargin
}

// Reset stops every layer immediately, cancels all pending stops and restores
// the master level. The manager stays usable.
func (m *Manager) Reset() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	stop := m.drain()
	if !m.muted {
		m.master().FadeTo(m.cfg.MasterGain, m.engine.CurrentTime(), 0)
	}
	m.mu.Unlock()

	for _, l := range stop {
		l.Stop()
	}
}

// Close stops every layer immediately and cancels every pending stop. No
// callback of this manager fires afterwards. Close is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	stop := m.drain()
	m.mu.Unlock()

	for _, l := range stop {
		l.Stop()
	}
	m.logger.Debug("Ambient manager closed", zap.Int("layersStopped", len(stop)))
}

// drain empties active and fading, returning the layers to stop.
func (m *Manager) drain() []layers.Layer {
	stop := make([]layers.Layer, 0, len(m.active)+len(m.fading))
	for l, p := range m.fading {
		p.timer.Stop()
		stop = append(stop, l)
	}
	for _, l := range m.active {
		stop = append(stop, l)
	}
	m.fading = make(map[layers.Layer]*pendingStop)
	m.active = make(map[string]layers.Layer)
	m.env = ""
	m.hasEnv = false
	return stop
}

// ActiveKeys lists the keys of the current soundscape in name order.
func (m *Manager) ActiveKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.active)
}

// Environment is the current environment; ok is false before the first
// SetEnvironment and after Teardown.
func (m *Manager) Environment() (env domain.Environment, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.env, m.hasEnv
}

func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// FadingOut is the number of layers waiting for their scheduled stop.
func (m *Manager) FadingOut() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fading)
}

func (m *Manager) reportError(err error) {
	if m.onError != nil {
		m.onError(err)
	}
}

func sortedKeys(active map[string]layers.Layer) []string {
	keys := make([]string, 0, len(active))
	for k := range active {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

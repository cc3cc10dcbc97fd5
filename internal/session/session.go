// Package session binds one player's narrative state to its own audio engine
// and soundscape.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"ambient-novel/internal/audio/ambient"
	"ambient-novel/internal/audio/engine"
	"ambient-novel/internal/audio/layers"
	"ambient-novel/internal/domain"
	"ambient-novel/internal/metrics"
	"ambient-novel/internal/narration"
	"ambient-novel/internal/narrative"
	"ambient-novel/internal/playthrough"
	"ambient-novel/internal/preferences"

	"go.uber.org/zap"
)

// CueSource resolves narration for a dialogue line. *narration.Narrator satisfies it.
type CueSource interface {
	Cue(ctx context.Context, scene *domain.Scene, line int) (narration.Cue, bool)
}

// Deps are shared by every session of a Manager.
type Deps struct {
	Machine      *narrative.Machine
	Registry     *layers.Registry
	Builder      ambient.LayerBuilder
	Narrator     CueSource              // nil disables narration cues
	Preferences  preferences.Store      // nil keeps the narration flag in memory only
	Playthroughs playthrough.Repository // nil skips recording
	SampleRate   int
	Ambient      ambient.Config
	// NewScheduler creates the timer source of one session engine. Defaults
	// to a realtime scheduler.
	NewScheduler func() engine.Scheduler
	Logger       *zap.Logger
}

var endingTitles = map[domain.EndingType]string{
	domain.EndingGood:    "A Meaningful End",
	domain.EndingBad:     "A Tragic End",
	domain.EndingNeutral: "A New Beginning",
}

// EndingTitle is the caption shown when a run ends with t.
func EndingTitle(t domain.EndingType) string {
	return endingTitles[t]
}

// Session is one playthrough in progress. All methods are safe for concurrent use.
type Session struct {
	id       string
	clientID string
	deps     Deps
	logger   *zap.Logger

	sched   engine.Scheduler
	engine  *engine.Engine
	ambient *ambient.Manager

	mu        sync.Mutex
	state     narrative.State
	narration bool
	recorded  bool
	closed    bool
	ending    bool
	subs      map[int]func(Snapshot)
	nextSub   int

	releaseOnce sync.Once
	released    chan struct{}
	tracked     atomic.Bool
}

func newSession(ctx context.Context, id, clientID string, deps Deps) (*Session, error) {
	logger := deps.Logger.Named("Session").With(zap.String("sessionID", id))

	sched := deps.NewScheduler()
	e := engine.New(engine.Config{SampleRate: deps.SampleRate}, sched, engine.WithLogger(logger))
	mgr := ambient.New(e, deps.Registry, deps.Builder, deps.Ambient, logger,
		ambient.WithErrorHook(func(error) {
			metrics.AudioErrorsTotal.WithLabelValues("ambient").Inc()
		}),
	)

	s := &Session{
		id:        id,
		clientID:  clientID,
		deps:      deps,
		logger:    logger,
		sched:     sched,
		engine:    e,
		ambient:   mgr,
		state:     deps.Machine.Start(),
		narration: preferences.DefaultNarration,
		subs:      make(map[int]func(Snapshot)),
		released:  make(chan struct{}),
	}
	if deps.Preferences != nil && clientID != "" {
		s.narration = deps.Preferences.Narration(ctx, clientID)
	}

	sc, err := deps.Machine.CurrentScene(s.state)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("resolve entry scene: %w", err)
	}
	s.applyEnvironment(sc.Environment)
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Engine is the session's audio engine, for output sinks.
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Snapshot describes what a renderer should show right now.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("session %s: %w", s.id, domain.ErrSessionNotFound)
	}
	snap, err := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}
	return s.withCue(ctx, snap), nil
}

// Advance moves the dialogue cursor one line forward.
func (s *Session) Advance(ctx context.Context) (Snapshot, error) {
	return s.transition(ctx, "advance", func(st narrative.State) (narrative.State, error) {
		return s.deps.Machine.AdvanceLine(st)
	})
}

// Choose follows the choice leading to next. On error the session is unchanged.
func (s *Session) Choose(ctx context.Context, next string) (Snapshot, error) {
	return s.transition(ctx, "choose", func(st narrative.State) (narrative.State, error) {
		return s.deps.Machine.Choose(st, next)
	})
}

// Restart discards all progress, silences every layer at once and starts the
// entry scene's soundscape.
func (s *Session) Restart(ctx context.Context) (Snapshot, error) {
	return s.transition(ctx, "restart", func(narrative.State) (narrative.State, error) {
		s.ambient.Reset()
		s.recorded = false
		return s.deps.Machine.Restart(), nil
	})
}

func (s *Session) transition(ctx context.Context, kind string, step func(narrative.State) (narrative.State, error)) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("session %s: %w", s.id, domain.ErrSessionNotFound)
	}

	next, err := step(s.state)
	if err != nil {
		s.mu.Unlock()
		metrics.TransitionsTotal.WithLabelValues(kind, "error").Inc()
		s.logger.Info("Transition rejected", zap.String("kind", kind), zap.Error(err))
		return Snapshot{}, err
	}
	metrics.TransitionsTotal.WithLabelValues(kind, "ok").Inc()

	sc, err := s.deps.Machine.CurrentScene(next)
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.state = next
	s.gesture()
	s.applyEnvironment(sc.Environment)
	s.recordEndingLocked(ctx, sc)

	snap, err := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	return s.publish(ctx, snap, err, subs)
}

// gesture resumes a suspended engine on player input unless muted.
func (s *Session) gesture() {
	if s.ambient.Muted() || s.engine.State() != engine.StateSuspended {
		return
	}
	if err := s.engine.Resume(); err != nil {
		s.logger.Warn("Failed to resume audio engine", zap.Error(err))
		metrics.AudioErrorsTotal.WithLabelValues("engine").Inc()
	}
}

func (s *Session) applyEnvironment(env domain.Environment) {
	if cur, ok := s.ambient.Environment(); ok && cur == env {
		return
	}
	s.ambient.SetEnvironment(env)
	metrics.EnvironmentChangesTotal.WithLabelValues(string(env)).Inc()
}

// recordEndingLocked saves the run once when it reaches the last line of an
// ending. Storage errors are logged only.
func (s *Session) recordEndingLocked(ctx context.Context, sc *domain.Scene) {
	if s.recorded || !s.deps.Machine.IsTerminal(s.state) {
		return
	}
	s.recorded = true
	metrics.EndingsReachedTotal.WithLabelValues(string(sc.EndingType)).Inc()
	s.logger.Info("Ending reached", zap.String("scene", sc.ID), zap.String("endingType", string(sc.EndingType)))

	if s.deps.Playthroughs == nil {
		return
	}
	rec := playthrough.NewRecord(s.id, s.state.GameState, sc.EndingType)
	if err := s.deps.Playthroughs.Save(ctx, rec); err != nil {
		s.logger.Error("Failed to record playthrough", zap.Error(err))
	}
}

// SetMuted fades the soundscape out or back in. Unmuting also counts as the
// gesture that starts a suspended engine.
func (s *Session) SetMuted(ctx context.Context, muted bool) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("session %s: %w", s.id, domain.ErrSessionNotFound)
	}
	s.ambient.SetMuted(muted)
	snap, err := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	return s.publish(ctx, snap, err, subs)
}

// SetNarration switches narration cues on or off and remembers the choice for
// the client. A failed write is logged; the session still uses the new value.
func (s *Session) SetNarration(ctx context.Context, enabled bool) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("session %s: %w", s.id, domain.ErrSessionNotFound)
	}
	s.narration = enabled
	if s.deps.Preferences != nil && s.clientID != "" {
		if err := s.deps.Preferences.SetNarration(ctx, s.clientID, enabled); err != nil {
			s.logger.Warn("Narration preference not saved", zap.Error(err))
		}
	}
	snap, err := s.snapshotLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	return s.publish(ctx, snap, err, subs)
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned func unregisters it.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// publish resolves the narration cue outside the session lock and hands the
// snapshot to subs.
func (s *Session) publish(ctx context.Context, snap Snapshot, err error, subs []func(Snapshot)) (Snapshot, error) {
	if err != nil {
		return Snapshot{}, err
	}
	snap = s.withCue(ctx, snap)
	for _, fn := range subs {
		fn(snap)
	}
	return snap, nil
}

func (s *Session) subscribersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

// End stops accepting input, fades the soundscape out and releases the audio
// engine once the fade is over. The returned channel is closed on release.
// End after Close, or twice, only returns the channel.
func (s *Session) End() <-chan struct{} {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.released
	}
	s.closed = true
	s.ending = true
	s.subs = make(map[int]func(Snapshot))
	s.mu.Unlock()

	wait := s.ambient.Teardown()
	s.logger.Debug("Session ending", zap.Duration("fade", wait))
	s.sched.AfterFunc(wait, s.release)
	return s.released
}

// Ending reports whether End was called and the fade may still be running.
func (s *Session) Ending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ending
}

// Close stops all audio immediately and releases the engine, cutting short a
// running End. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.subs = make(map[int]func(Snapshot))
	s.mu.Unlock()
	s.release()
}

// Released is closed once the audio engine has been released.
func (s *Session) Released() <-chan struct{} {
	return s.released
}

func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.ambient.Close()
		if err := s.engine.Close(); err != nil {
			s.logger.Warn("Failed to close audio engine", zap.Error(err))
		}
		if c, ok := s.sched.(interface{ Close() }); ok {
			c.Close()
		}
		close(s.released)
		s.logger.Debug("Session closed")
	})
}

// untrack reports true exactly once, for the caller that stops counting s as live.
func (s *Session) untrack() bool {
	return s.tracked.CompareAndSwap(true, false)
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

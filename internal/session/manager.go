package session

import (
	"context"
	"fmt"
	"time"

	"ambient-novel/internal/audio/engine"
	"ambient-novel/internal/domain"
	"ambient-novel/internal/metrics"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Manager is the registry of live sessions. A session idle for longer than
// the TTL is evicted and closed at once; a deleted one fades out first.
type Manager struct {
	deps   Deps
	items  *cache.Cache
	logger *zap.Logger
}

// NewManager creates a registry. Sessions are touched on every Get.
func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.NewScheduler == nil {
		deps.NewScheduler = func() engine.Scheduler { return engine.NewRealtimeScheduler() }
	}
	cleanup := idleTTL / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	m := &Manager{
		deps:   deps,
		items:  cache.New(idleTTL, cleanup),
		logger: deps.Logger.Named("SessionManager"),
	}
	m.items.OnEvicted(func(id string, v interface{}) {
		s, ok := v.(*Session)
		if !ok {
			return
		}
		if !s.Ending() {
			s.Close()
		}
		if s.untrack() {
			metrics.SessionsActive.Dec()
		}
		m.logger.Info("Session removed", zap.String("sessionID", id))
	})
	return m
}

// Create starts a new session at the entry scene. clientID selects the
// stored narration preference and may be empty.
func (m *Manager) Create(ctx context.Context, clientID string) (*Session, error) {
	id := uuid.NewString()
	s, err := newSession(ctx, id, clientID, m.deps)
	if err != nil {
		m.logger.Error("Failed to create session", zap.Error(err))
		return nil, err
	}
	s.tracked.Store(true)
	m.items.SetDefault(id, s)
	metrics.SessionsCreatedTotal.Inc()
	metrics.SessionsActive.Inc()
	m.logger.Info("Session created", zap.String("sessionID", id), zap.String("clientID", clientID))
	return s, nil
}

// Get returns the session and resets its idle timer. A session evicted
// concurrently is reported as not found, never re-added.
func (m *Manager) Get(id string) (*Session, error) {
	v, ok := m.items.Get(id)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	s := v.(*Session)
	if s.Closed() {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	if err := m.items.Replace(id, s, cache.DefaultExpiration); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return s, nil
}

// Delete ends the session with a fade-out and forgets it.
func (m *Manager) Delete(id string) error {
	v, ok := m.items.Get(id)
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	v.(*Session).End()
	m.items.Delete(id)
	return nil
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	return m.items.ItemCount()
}

// Close closes every session immediately, including ones still fading out.
// The manager stays usable.
func (m *Manager) Close() {
	for id, item := range m.items.Items() {
		if s, ok := item.Object.(*Session); ok {
			s.Close()
		}
		m.items.Delete(id)
	}
}

// Sweep evicts expired sessions now instead of waiting for the janitor.
func (m *Manager) Sweep() {
	m.items.DeleteExpired()
}

// Package preferences persists per-client settings that outlive a session.
// Only the narration on/off flag exists today.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultNarration is used whenever no valid flag is stored.
const DefaultNarration = true

// Store reads and writes the narration flag of a client.
type Store interface {
	// Narration never fails: absence, garbage and backend errors all yield
	// DefaultNarration.
	Narration(ctx context.Context, clientID string) bool
	SetNarration(ctx context.Context, clientID string, enabled bool) error
}

func narrationKey(clientID string) string {
	return fmt.Sprintf("prefs:%s:narration", clientID)
}

func parseFlag(raw string) (bool, error) {
	return strconv.ParseBool(raw)
}

// Compile-time checks
var (
	_ Store = (*redisStore)(nil)
	_ Store = (*memoryStore)(nil)
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed Store. ttl 0 keeps flags forever.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) Store {
	return &redisStore{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisPreferences"),
	}
}

func (s *redisStore) Narration(ctx context.Context, clientID string) bool {
	raw, err := s.client.Get(ctx, narrationKey(clientID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Failed to read narration preference, using default",
				zap.String("clientID", clientID), zap.Error(err))
		}
		return DefaultNarration
	}
	v, err := parseFlag(raw)
	if err != nil {
		s.logger.Warn("Stored narration preference is malformed, using default",
			zap.String("clientID", clientID), zap.String("raw", raw))
		return DefaultNarration
	}
	return v
}

func (s *redisStore) SetNarration(ctx context.Context, clientID string, enabled bool) error {
	if err := s.client.Set(ctx, narrationKey(clientID), strconv.FormatBool(enabled), s.ttl).Err(); err != nil {
		s.logger.Error("Failed to store narration preference", zap.String("clientID", clientID), zap.Error(err))
		return fmt.Errorf("store narration preference: %w", err)
	}
	return nil
}

type memoryStore struct {
	c      *cache.Cache
	logger *zap.Logger
}

// NewMemoryStore creates a process-local Store. ttl 0 keeps flags forever.
func NewMemoryStore(ttl time.Duration, logger *zap.Logger) Store {
	expiration := cache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}
	return &memoryStore{
		c:      cache.New(expiration, 10*time.Minute),
		logger: logger.Named("MemoryPreferences"),
	}
}

func (s *memoryStore) Narration(_ context.Context, clientID string) bool {
	v, ok := s.c.Get(narrationKey(clientID))
	if !ok {
		return DefaultNarration
	}
	raw, _ := v.(string)
	flag, err := parseFlag(raw)
	if err != nil {
		return DefaultNarration
	}
	return flag
}

func (s *memoryStore) SetNarration(_ context.Context, clientID string, enabled bool) error {
	s.c.SetDefault(narrationKey(clientID), strconv.FormatBool(enabled))
	return nil
}

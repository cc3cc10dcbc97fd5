// Package app wires configuration into the components shared by the server
// and the terminal player.
package app

import (
	"context"
	"fmt"
	"time"

	"ambient-novel/internal/assets"
	"ambient-novel/internal/audio/layers"
	"ambient-novel/internal/config"
	"ambient-novel/internal/domain"
	"ambient-novel/internal/metrics"
	"ambient-novel/internal/narration"
	"ambient-novel/internal/narrative"
	"ambient-novel/internal/playthrough"
	"ambient-novel/internal/preferences"
	"ambient-novel/internal/session"
	"ambient-novel/internal/storygraph"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	connectAttempts   = 10
	connectRetryDelay = 2 * time.Second
	narrationWarmup   = 2 * time.Minute
)

// App holds the built components and the resources that must be released.
type App struct {
	Story        *storygraph.Store
	Deps         session.Deps
	Playthroughs playthrough.Repository
	Preferences  preferences.Store

	closers []func()
}

// Build loads the story and soundscape table and connects the optional
// Redis and Postgres backends. Configuration problems are returned as errors.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}

	story, err := storygraph.Open(cfg.StoryFile)
	if err != nil {
		return nil, fmt.Errorf("load story: %w", err)
	}
	a.Story = story
	logger.Info("Story loaded", zap.Int("scenes", story.Len()), zap.String("entry", story.Entry()))

	var music *layers.Spec
	if cfg.MusicAsset != "" {
		m := layers.MusicSpec(cfg.MusicAsset, cfg.MusicGain)
		music = &m
	}
	registry := layers.DefaultRegistry(music)
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("soundscape table: %w", err)
	}

	factoryOpts := []layers.FactoryOption{
		layers.WithStreamFadeIn(cfg.AudioCrossfade),
		layers.WithErrorHook(func(key string, err error) {
			metrics.AudioErrorsTotal.WithLabelValues("layer").Inc()
		}),
	}
	if cfg.AudioSeed != 0 {
		factoryOpts = append(factoryOpts, layers.WithSeed(cfg.AudioSeed))
	}
	var loaderOpts []assets.LoaderOption
	if cfg.AssetMaxBytes > 0 {
		loaderOpts = append(loaderOpts, assets.WithMaxBytes(cfg.AssetMaxBytes))
	}
	factory := layers.NewFactory(assets.NewLoader(cfg.AssetBase, logger, loaderOpts...), logger, factoryOpts...)

	var narrator session.CueSource
	if cfg.NarrationDir != "" {
		n := narration.NewNarrator(assets.NewLoader(cfg.NarrationDir, logger), "/narration", logger)
		// Lines not indexed yet are looked up lazily in the background.
		warmCtx, stopWarm := context.WithTimeout(context.Background(), narrationWarmup)
		a.closers = append(a.closers, stopWarm)
		go n.Warm(warmCtx, allScenes(story))
		narrator = n
	}

	if cfg.RedisURL != "" {
		client, err := setupRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.Preferences = preferences.NewRedisStore(client, 0, logger)
	} else {
		logger.Info("REDIS_URL not set, narration preferences are kept in memory")
		a.Preferences = preferences.NewMemoryStore(0, logger)
	}

	if cfg.DatabaseURL != "" {
		if err := playthrough.ApplyMigrations(cfg.DatabaseURL, logger); err != nil {
			a.Close()
			return nil, err
		}
		pool, err := setupPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.Playthroughs = playthrough.NewPgRepository(pool, logger)
	} else {
		logger.Info("DATABASE_URL not set, playthroughs are kept in memory")
		a.Playthroughs = playthrough.NewMemoryRepository(logger)
	}

	a.Deps = session.Deps{
		Machine:      narrative.New(story, narrative.WithStrictChoices(cfg.StrictChoices)),
		Registry:     registry,
		Builder:      factory,
		Narrator:     narrator,
		Preferences:  a.Preferences,
		Playthroughs: a.Playthroughs,
		SampleRate:   cfg.AudioSampleRate,
		Ambient:      cfg.Ambient(),
		Logger:       logger,
	}
	return a, nil
}

func allScenes(story *storygraph.Store) []*domain.Scene {
	scenes := make([]*domain.Scene, 0, story.Len())
	for _, id := range story.IDs() {
		if sc, err := story.Scene(id); err == nil {
			scenes = append(scenes, sc)
		}
	}
	return scenes
}

// Close releases backend connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func setupRedis(ctx context.Context, url string, logger *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			logger.Info("Connected to Redis", zap.String("address", opts.Addr), zap.Int("attempt", attempt))
			return client, nil
		}
		_ = client.Close()
		lastErr = err
		logger.Warn("Redis ping failed, retrying...", zap.Int("attempt", attempt), zap.Error(err))
		if !sleep(ctx, connectRetryDelay) {
			break
		}
	}
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", connectAttempts, lastErr)
}

func setupPostgres(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse postgres config: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
		if err == nil {
			err = pool.Ping(connectCtx)
			if err != nil {
				pool.Close()
			}
		}
		cancel()
		if err == nil {
			logger.Info("Connected to PostgreSQL", zap.Int("attempt", attempt))
			return pool, nil
		}
		lastErr = err
		logger.Warn("Postgres connection failed, retrying...", zap.Int("attempt", attempt), zap.Error(err))
		if !sleep(ctx, connectRetryDelay) {
			break
		}
	}
	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", connectAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

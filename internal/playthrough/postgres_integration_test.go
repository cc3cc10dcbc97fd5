//go:build integration

package playthrough_test

import (
	"context"
	"testing"
	"time"

	"ambient-novel/internal/domain"
	"ambient-novel/internal/playthrough"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type PgRepositorySuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	repo      playthrough.Repository
}

func (s *PgRepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.container, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("novel_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start postgres container")

	dsn, err := s.container.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	require.NoError(s.T(), playthrough.ApplyMigrations(dsn, zap.NewNop()))
	// второй запуск не должен падать
	require.NoError(s.T(), playthrough.ApplyMigrations(dsn, zap.NewNop()))

	s.pool, err = pgxpool.New(s.ctx, dsn)
	require.NoError(s.T(), err)
	s.repo = playthrough.NewPgRepository(s.pool, zap.NewNop())
}

func (s *PgRepositorySuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PgRepositorySuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, "TRUNCATE playthroughs")
	s.Require().NoError(err)
}

func (s *PgRepositorySuite) TestSaveAndStats() {
	state := domain.NewGameState("start")
	state.CurrentScene = "endingGuardian"
	state.VisitedScenes = append(state.VisitedScenes, "lightPath", "guardianPath", "endingGuardian")

	for i := 0; i < 2; i++ {
		s.Require().NoError(s.repo.Save(s.ctx, playthrough.NewRecord("s1", state, domain.EndingGood)))
	}
	bad := domain.NewGameState("start")
	bad.CurrentScene = "endingAbyss"
	bad.VisitedScenes = append(bad.VisitedScenes, "endingAbyss")
	s.Require().NoError(s.repo.Save(s.ctx, playthrough.NewRecord("s2", bad, domain.EndingBad)))

	stats, err := s.repo.Stats(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(stats, 2)
	s.Equal("endingGuardian", stats[0].EndingScene)
	s.Equal(domain.EndingGood, stats[0].EndingType)
	s.Equal(int64(2), stats[0].Count)

	recent, err := s.repo.Recent(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal("s2", recent[0].SessionID)
	s.Equal([]string{"start", "endingAbyss"}, recent[0].Path)
	s.Equal(1, recent[0].ChoicesMade)
}

func TestPgRepositorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PgRepositorySuite))
}

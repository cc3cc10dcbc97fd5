package playthrough

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	insertPlaythroughQuery = `
        INSERT INTO playthroughs (id, session_id, ending_scene, ending_type, path, choices_made, reached_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	endingStatsQuery = `
        SELECT ending_scene, ending_type, COUNT(*) AS count
        FROM playthroughs
        GROUP BY ending_scene, ending_type
        ORDER BY count DESC, ending_scene
    `
	recentPlaythroughsQuery = `
        SELECT id, session_id, ending_scene, ending_type, path, choices_made, reached_at
        FROM playthroughs
        ORDER BY reached_at DESC
        LIMIT $1
    `
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgRepository creates a Postgres-backed Repository.
func NewPgRepository(db DBTX, logger *zap.Logger) Repository {
	return &pgRepository{db: db, logger: logger.Named("PgPlaythroughRepo")}
}

func (r *pgRepository) Save(ctx context.Context, rec Record) error {
	log := r.logger.With(zap.String("ending", rec.EndingScene), zap.String("sessionID", rec.SessionID))
	path := rec.Path
	if path == nil {
		path = []string{}
	}
	_, err := r.db.Exec(ctx, insertPlaythroughQuery,
		rec.ID, rec.SessionID, rec.EndingScene, string(rec.EndingType), path, rec.ChoicesMade, rec.ReachedAt)
	if err != nil {
		log.Error("Failed to insert playthrough", zap.Error(err))
		return fmt.Errorf("insert playthrough: %w", err)
	}
	log.Debug("Playthrough recorded")
	return nil
}

func (r *pgRepository) Stats(ctx context.Context) ([]EndingStat, error) {
	stats := []EndingStat{}
	if err := pgxscan.Select(ctx, r.db, &stats, endingStatsQuery); err != nil {
		r.logger.Error("Failed to query ending stats", zap.Error(err))
		return nil, fmt.Errorf("query ending stats: %w", err)
	}
	return stats, nil
}

func (r *pgRepository) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	records := []Record{}
	if err := pgxscan.Select(ctx, r.db, &records, recentPlaythroughsQuery, limit); err != nil {
		r.logger.Error("Failed to query recent playthroughs", zap.Error(err), zap.Int("limit", limit))
		return nil, fmt.Errorf("query recent playthroughs: %w", err)
	}
	return records, nil
}

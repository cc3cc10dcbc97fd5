// Package playthrough records which endings players reach. Game state itself
// is never persisted; only the finished run is.
package playthrough

import (
	"context"
	"sort"
	"sync"
	"time"

	"ambient-novel/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Record is one finished run.
type Record struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	SessionID   string            `db:"session_id" json:"sessionId"`
	EndingScene string            `db:"ending_scene" json:"endingScene"`
	EndingType  domain.EndingType `db:"ending_type" json:"endingType"`
	Path        []string          `db:"path" json:"path"`
	ChoicesMade int               `db:"choices_made" json:"choicesMade"`
	ReachedAt   time.Time         `db:"reached_at" json:"reachedAt"`
}

// EndingStat counts how often an ending was reached.
type EndingStat struct {
	EndingScene string            `db:"ending_scene" json:"endingScene"`
	EndingType  domain.EndingType `db:"ending_type" json:"endingType"`
	Count       int64             `db:"count" json:"count"`
}

// Repository stores finished runs.
type Repository interface {
	Save(ctx context.Context, rec Record) error
	// Stats is ordered by count, most reached first.
	Stats(ctx context.Context) ([]EndingStat, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
}

// NewRecord builds a record for a run that just reached endingScene.
func NewRecord(sessionID string, state domain.GameState, endingType domain.EndingType) Record {
	path := make([]string, len(state.VisitedScenes))
	copy(path, state.VisitedScenes)
	return Record{
		ID:          uuid.New(),
		SessionID:   sessionID,
		EndingScene: state.CurrentScene,
		EndingType:  endingType,
		Path:        path,
		ChoicesMade: len(path) - 1,
		ReachedAt:   time.Now().UTC(),
	}
}

var _ Repository = (*memoryRepository)(nil)

type memoryRepository struct {
	mu      sync.RWMutex
	records []Record
	logger  *zap.Logger
}

// NewMemoryRepository keeps records for the life of the process.
func NewMemoryRepository(logger *zap.Logger) Repository {
	return &memoryRepository{logger: logger.Named("MemoryPlaythroughRepo")}
}

func (r *memoryRepository) Save(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	r.logger.Debug("Playthrough recorded", zap.String("ending", rec.EndingScene), zap.String("sessionID", rec.SessionID))
	return nil
}

func (r *memoryRepository) Stats(_ context.Context) ([]EndingStat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type key struct {
		scene string
		typ   domain.EndingType
	}
	counts := make(map[key]int64)
	for _, rec := range r.records {
		counts[key{rec.EndingScene, rec.EndingType}]++
	}
	stats := make([]EndingStat, 0, len(counts))
	for k, n := range counts {
		stats = append(stats, EndingStat{EndingScene: k.scene, EndingType: k.typ, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].EndingScene < stats[j].EndingScene
	})
	return stats, nil
}

func (r *memoryRepository) Recent(_ context.Context, limit int) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.records) {
		limit = len(r.records)
	}
	out := make([]Record, 0, limit)
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.records[i])
	}
	return out, nil
}

package playthrough

import (
	"context"
	"testing"

	"ambient-novel/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func finishedState(path ...string) domain.GameState {
	st := domain.NewGameState(path[0])
	for _, id := range path[1:] {
		st.Choices[st.CurrentScene] = id
		st.CurrentScene = id
		st.VisitedScenes = append(st.VisitedScenes, id)
	}
	return st
}

func TestNewRecord(t *testing.T) {
	st := finishedState("start", "lightPath", "guardianPath", "endingGuardian")
	rec := NewRecord("s1", st, domain.EndingGood)

	assert.Equal(t, "endingGuardian", rec.EndingScene)
	assert.Equal(t, domain.EndingGood, rec.EndingType)
	assert.Equal(t, 3, rec.ChoicesMade)
	assert.Equal(t, st.VisitedScenes, rec.Path)
	assert.False(t, rec.ReachedAt.IsZero())

	st.VisitedScenes[0] = "mutated"
	assert.Equal(t, "start", rec.Path[0], "record must not alias the state")
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(zap.NewNop())

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)

	require.NoError(t, repo.Save(ctx, NewRecord("a", finishedState("start", "endingGuardian"), domain.EndingGood)))
	require.NoError(t, repo.Save(ctx, NewRecord("b", finishedState("start", "endingAbyss"), domain.EndingBad)))
	require.NoError(t, repo.Save(ctx, NewRecord("c", finishedState("start", "endingGuardian"), domain.EndingGood)))

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, EndingStat{EndingScene: "endingGuardian", EndingType: domain.EndingGood, Count: 2}, stats[0])
	assert.Equal(t, int64(1), stats[1].Count)

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].SessionID)
	assert.Equal(t, "b", recent[1].SessionID)

	all, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

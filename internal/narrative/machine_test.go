package narrative_test

import (
	"errors"
	"testing"

	"ambient-novel/internal/domain"
	"ambient-novel/internal/narrative"
	"ambient-novel/internal/storygraph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(n int) []domain.DialogueLine {
	out := make([]domain.DialogueLine, n)
	for i := range out {
		out[i] = domain.DialogueLine{Speaker: "Narrator", Text: "..."}
	}
	return out
}

func testStore(t *testing.T) *storygraph.Store {
	t.Helper()
	scenes := []domain.Scene{
		{
			ID:          "start",
			Dialogue:    lines(3),
			Environment: domain.EnvForest,
			Choices: []domain.Choice{
				{Text: "light", NextScene: "lightPath"},
				{Text: "dark", NextScene: "darkPath"},
			},
		},
		{
			ID:          "lightPath",
			Dialogue:    lines(1),
			Environment: domain.EnvClearing,
			Choices:     []domain.Choice{{Text: "back", NextScene: "start"}, {Text: "end", NextScene: "ending"}},
		},
		{
			ID:          "darkPath",
			Dialogue:    lines(2),
			Environment: domain.EnvCave,
			Choices:     []domain.Choice{{Text: "back", NextScene: "start"}},
		},
		{
			ID:          "ending",
			Dialogue:    lines(2),
			Environment: domain.EnvSunrise,
			IsEnding:    true,
			EndingType:  domain.EndingGood,
		},
	}
	store, err := storygraph.New(scenes, "start")
	require.NoError(t, err)
	return store
}

func TestStart(t *testing.T) {
	m := narrative.New(testStore(t))
	s := m.Start()

	assert.Equal(t, "start", s.CurrentScene)
	assert.Equal(t, []string{"start"}, s.VisitedScenes)
	assert.Empty(t, s.Choices)
	assert.Equal(t, 0, s.Line)
	assert.Equal(t, narrative.PhaseDialogue, m.Phase(s))
}

func TestAdvanceLine_StopsAtLastLine(t *testing.T) {
	m := narrative.New(testStore(t))
	s := m.Start()

	var err error
	for i := 0; i < 5; i++ {
		s, err = m.AdvanceLine(s)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, s.Line)

	again, err := m.AdvanceLine(s)
	require.NoError(t, err)
	assert.Equal(t, s, again)
}

func TestChoose(t *testing.T) {
	m := narrative.New(testStore(t))

	t.Run("scenario from entry", func(t *testing.T) {
		s, err := m.Choose(m.Start(), "lightPath")
		require.NoError(t, err)
		assert.Equal(t, "lightPath", s.CurrentScene)
		assert.Equal(t, []string{"start", "lightPath"}, s.VisitedScenes)
		assert.Equal(t, map[string]string{"start": "lightPath"}, s.Choices)
		assert.Equal(t, 0, s.Line)
	})

	t.Run("cursor resets", func(t *testing.T) {
		s := m.Start()
		s, _ = m.AdvanceLine(s)
		s, _ = m.AdvanceLine(s)
		require.Equal(t, 2, s.Line)

		s, err := m.Choose(s, "darkPath")
		require.NoError(t, err)
		assert.Equal(t, 0, s.Line)
	})

	t.Run("last choice from a scene wins", func(t *testing.T) {
		s, err := m.Choose(m.Start(), "lightPath")
		require.NoError(t, err)
		s, err = m.Choose(s, "start")
		require.NoError(t, err)
		s, err = m.Choose(s, "darkPath")
		require.NoError(t, err)

		assert.Equal(t, "darkPath", s.Choices["start"])
		assert.Equal(t, "start", s.Choices["lightPath"])
		assert.Equal(t, []string{"start", "lightPath", "start", "darkPath"}, s.VisitedScenes)
	})

	t.Run("input state is not modified", func(t *testing.T) {
		before := m.Start()
		_, err := m.Choose(before, "lightPath")
		require.NoError(t, err)
		assert.Equal(t, "start", before.CurrentScene)
		assert.Equal(t, []string{"start"}, before.VisitedScenes)
		assert.Empty(t, before.Choices)
	})
}

func TestChoose_Errors(t *testing.T) {
	m := narrative.New(testStore(t))
	start := m.Start()

	t.Run("unknown scene", func(t *testing.T) {
		s, err := m.Choose(start, "journal")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrUnknownScene))
		assert.Equal(t, start, s)
	})

	t.Run("not a declared choice", func(t *testing.T) {
		s, err := m.Choose(start, "ending")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidChoice))

		var invalid *domain.InvalidChoiceError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, "start", invalid.FromScene)
		assert.Equal(t, "ending", invalid.NextScene)
		assert.Equal(t, start, s)
	})

	t.Run("lenient mode allows jumps", func(t *testing.T) {
		lenient := narrative.New(testStore(t), narrative.WithStrictChoices(false))
		s, err := lenient.Choose(lenient.Start(), "ending")
		require.NoError(t, err)
		assert.Equal(t, "ending", s.CurrentScene)

		stuck, err := lenient.Choose(s, lenient.Start().CurrentScene)
		require.Error(t, err, "an ending is only left by restart")
		assert.True(t, errors.Is(err, domain.ErrInvalidChoice))
		assert.Equal(t, s, stuck)
	})

	t.Run("unknown current scene", func(t *testing.T) {
		broken := start
		broken.CurrentScene = "missing"
		_, err := m.CurrentScene(broken)
		assert.True(t, errors.Is(err, domain.ErrUnknownScene))
		assert.False(t, m.IsChoicePoint(broken))
		assert.False(t, m.IsTerminal(broken))
	})
}

func TestPhases(t *testing.T) {
	m := narrative.New(testStore(t))
	s := m.Start()

	assert.False(t, m.IsChoicePoint(s))
	s, _ = m.AdvanceLine(s)
	s, _ = m.AdvanceLine(s)
	assert.True(t, m.IsChoicePoint(s))
	assert.Equal(t, narrative.PhaseChoicePoint, m.Phase(s))

	s, err := m.Choose(s, "lightPath")
	require.NoError(t, err)
	// Single-line scene: the first line is already the choice point.
	assert.True(t, m.IsChoicePoint(s))

	s, err = m.Choose(s, "ending")
	require.NoError(t, err)
	assert.False(t, m.IsTerminal(s))
	assert.False(t, m.IsChoicePoint(s))

	s, _ = m.AdvanceLine(s)
	assert.True(t, m.IsTerminal(s))
	assert.Equal(t, narrative.PhaseEnding, m.Phase(s))

	// No automatic transition out of an ending.
	stuck, err := m.AdvanceLine(s)
	require.NoError(t, err)
	assert.Equal(t, s, stuck)

	_, err = m.Choose(s, "start")
	assert.True(t, errors.Is(err, domain.ErrInvalidChoice))

	restarted := m.Restart()
	assert.Equal(t, m.Start(), restarted)
}

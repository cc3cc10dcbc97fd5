package storygraph_test

import (
	"errors"
	"strings"
	"testing"

	"ambient-novel/internal/domain"
	"ambient-novel/internal/storygraph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(text string) domain.DialogueLine {
	return domain.DialogueLine{Speaker: "Narrator", Text: text}
}

func validScenes() []domain.Scene {
	return []domain.Scene{
		{
			ID:          "start",
			Dialogue:    []domain.DialogueLine{line("a"), line("b")},
			Choices:     []domain.Choice{{Text: "go", NextScene: "end"}, {Text: "stay", NextScene: "start"}},
			Environment: domain.EnvForest,
		},
		{
			ID:          "end",
			Dialogue:    []domain.DialogueLine{line("fin")},
			Environment: domain.EnvSunrise,
			IsEnding:    true,
			EndingType:  domain.EndingGood,
		},
	}
}

func TestDefaultStory(t *testing.T) {
	store, err := storygraph.Default()
	require.NoError(t, err)

	assert.Equal(t, "start", store.Entry())
	assert.Equal(t, 11, store.Len())

	// Every choice of the shipped story resolves and every scene has dialogue.
	for _, id := range store.IDs() {
		sc, err := store.Scene(id)
		require.NoError(t, err)
		assert.NotEmpty(t, sc.Dialogue, id)
		for _, c := range sc.Choices {
			assert.True(t, store.Has(c.NextScene), "%s -> %s", id, c.NextScene)
		}
	}

	start, err := store.Scene("start")
	require.NoError(t, err)
	assert.Equal(t, domain.EnvForest, start.Environment)
	assert.Equal(t, domain.Vec3{0, 5, 10}, start.CameraPosition)
	require.Len(t, start.Choices, 2)
	assert.Equal(t, "lightPath", start.Choices[0].NextScene)
	assert.Equal(t, "darkPath", start.Choices[1].NextScene)

	guardian, err := store.Scene("endingGuardian")
	require.NoError(t, err)
	assert.True(t, guardian.IsEnding)
	assert.Equal(t, domain.EndingGood, guardian.EndingType)
}

func TestScene_Unknown(t *testing.T) {
	store, err := storygraph.New(validScenes(), "start")
	require.NoError(t, err)

	_, err = store.Scene("journal")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownScene))

	var unknown *domain.UnknownSceneError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "journal", unknown.SceneID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func([]domain.Scene) []domain.Scene
		entry   string
		wantMsg string
	}{
		{
			name: "dangling nextScene",
			mutate: func(s []domain.Scene) []domain.Scene {
				s[0].Choices[0].NextScene = "nowhere"
				return s
			},
			wantMsg: `points to missing scene "nowhere"`,
		},
		{
			name: "empty dialogue",
			mutate: func(s []domain.Scene) []domain.Scene {
				s[1].Dialogue = nil
				return s
			},
			wantMsg: `"min"`,
		},
		{
			name: "ending without type",
			mutate: func(s []domain.Scene) []domain.Scene {
				s[1].EndingType = ""
				return s
			},
			wantMsg: "requires endingType",
		},
		{
			name: "ending type on regular scene",
			mutate: func(s []domain.Scene) []domain.Scene {
				s[0].EndingType = domain.EndingBad
				return s
			},
			wantMsg: "non-ending scene",
		},
		{
			name: "non-ending scene without choices",
			mutate: func(s []domain.Scene) []domain.Scene {
				s[0].Choices = nil
				return s
			},
			wantMsg: "has no choices",
		},
		{
			name: "unknown environment",
			mutate: func(s []domain.Scene) []domain.Scene {
				s[0].Environment = "moon"
				return s
			},
			wantMsg: `"environment"`,
		},
		{
			name: "duplicate id",
			mutate: func(s []domain.Scene) []domain.Scene {
				s[1].ID = "start"
				return s
			},
			wantMsg: "duplicate id",
		},
		{
			name:    "missing entry",
			mutate:  func(s []domain.Scene) []domain.Scene { return s },
			entry:   "prologue",
			wantMsg: `entry scene "prologue"`,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			entry := tc.entry
			if entry == "" {
				entry = "start"
			}
			_, err := storygraph.New(tc.mutate(validScenes()), entry)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidStory))
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	scenes := validScenes()
	scenes[0].Choices[0].NextScene = "nowhere"
	scenes[1].Dialogue = nil

	err := storygraph.Validate(scenes, "start")
	var cfgErr *storygraph.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.GreaterOrEqual(t, len(cfgErr.Problems()), 2)
}

func TestLoad_JSON(t *testing.T) {
	doc := `{
		"entry": "start",
		"scenes": [
			{"id": "start", "environment": "cave", "dialogue": [{"speaker": "You", "text": "Hello"}],
			 "choices": [{"text": "On", "nextScene": "end"}], "cameraPosition": [1, 2, 3]},
			{"id": "end", "environment": "temple", "dialogue": [{"speaker": "You", "text": "Bye"}],
			 "isEnding": true, "endingType": "neutral"}
		]
	}`
	store, err := storygraph.Load(strings.NewReader(doc), storygraph.FormatJSON)
	require.NoError(t, err)

	sc, err := store.Scene("start")
	require.NoError(t, err)
	assert.Equal(t, domain.Vec3{1, 2, 3}, sc.CameraPosition)
	assert.Equal(t, domain.EmotionNeutral, sc.Dialogue[0].Mood())
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	doc := "entry: start\nscenes: []\nextra: true\n"
	_, err := storygraph.Load(strings.NewReader(doc), storygraph.FormatYAML)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidStory))
}

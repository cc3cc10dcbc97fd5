package app

import (
	"context"
	"testing"

	"ambient-novel/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuild_InMemory(t *testing.T) {
	cfg := &config.Config{
		StrictChoices:   true,
		AudioSampleRate: 8000,
		AssetBase:       t.TempDir(),
		MusicAsset:      "soothing-music.mp3",
		MusicGain:       0.3,
		NarrationDir:    t.TempDir(),
	}
	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "start", a.Story.Entry())
	assert.NotNil(t, a.Preferences)
	assert.NotNil(t, a.Playthroughs)
	assert.NotNil(t, a.Deps.Narrator)
	assert.True(t, a.Deps.Machine.Strict())
	assert.Equal(t, 8000, a.Deps.SampleRate)
}

func TestBuild_BadStoryFile(t *testing.T) {
	_, err := Build(context.Background(), &config.Config{StoryFile: "/nonexistent/story.yaml"}, zap.NewNop())
	assert.Error(t, err)
}

func TestBuild_BadRedisURL(t *testing.T) {
	_, err := Build(context.Background(), &config.Config{RedisURL: "not a url"}, zap.NewNop())
	assert.ErrorContains(t, err, "REDIS_URL")
}

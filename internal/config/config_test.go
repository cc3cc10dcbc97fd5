package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SECRETS_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.StrictChoices)
	assert.Equal(t, 44100, cfg.AudioSampleRate)
	assert.Equal(t, 2500*time.Millisecond, cfg.AudioCrossfade)
	assert.Equal(t, 100*time.Millisecond, cfg.AudioStopMargin)
	assert.Equal(t, "soothing-music.mp3", cfg.MusicAsset)
	assert.InDelta(t, 0.3, cfg.MusicGain, 1e-9)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:8080"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, int64(64<<20), cfg.AssetMaxBytes)

	amb := cfg.Ambient()
	assert.Equal(t, 800*time.Millisecond, amb.UnmuteFade)
	assert.Equal(t, 500*time.Millisecond, amb.MuteFade)
	assert.InDelta(t, 1.0, amb.MasterGain, 1e-9)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SECRETS_DIR", t.TempDir())
	t.Setenv("STORY_STRICT_CHOICES", "false")
	t.Setenv("AUDIO_CROSSFADE", "1s")
	t.Setenv("AUDIO_START_MUTED", "true")
	t.Setenv("LOG_FILE", "/var/log/novel.log")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.StrictChoices)
	assert.Equal(t, time.Second, cfg.Ambient().Crossfade)
	assert.True(t, cfg.Ambient().StartMuted)
	assert.Equal(t, "/var/log/novel.log", cfg.Logger().OutputPath)
}

func TestLoad_Secrets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "database_url"), []byte("postgres://u:p@db/novel\n"), 0o600))
	t.Setenv("SECRETS_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/novel", cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisURL)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "redis_url"), []byte("  "), 0o600))
	_, err = Load()
	assert.Error(t, err, "empty secret file")
}

func TestValidate(t *testing.T) {
	t.Setenv("SECRETS_DIR", t.TempDir())
	t.Setenv("AUDIO_MASTER_GAIN", "1.5")
	t.Setenv("AUDIO_SAMPLE_RATE", "100")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDIO_MASTER_GAIN")
	assert.Contains(t, err.Error(), "AUDIO_SAMPLE_RATE")
}

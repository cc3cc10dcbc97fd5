package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ambient-novel/internal/audio/ambient"
	"ambient-novel/internal/logger"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию сервера и плеера
type Config struct {
	// Настройки сервера
	Port               string        `envconfig:"SERVER_PORT" default:"8080"`
	ShutdownTimeout    time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:8080"`

	// Логирование
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
	LogFile     string `envconfig:"LOG_FILE"`

	// История
	StoryFile     string `envconfig:"STORY_FILE"` // пусто - встроенная история
	StrictChoices bool   `envconfig:"STORY_STRICT_CHOICES" default:"true"`

	// Звук
	AudioSampleRate int           `envconfig:"AUDIO_SAMPLE_RATE" default:"44100"`
	AudioCrossfade  time.Duration `envconfig:"AUDIO_CROSSFADE" default:"2500ms"`
	AudioMuteFade   time.Duration `envconfig:"AUDIO_MUTE_FADE" default:"500ms"`
	AudioUnmuteFade time.Duration `envconfig:"AUDIO_UNMUTE_FADE" default:"800ms"`
	AudioStopMargin time.Duration `envconfig:"AUDIO_STOP_MARGIN" default:"100ms"`
	AudioMasterGain float64       `envconfig:"AUDIO_MASTER_GAIN" default:"1.0"`
	AudioStartMuted bool          `envconfig:"AUDIO_START_MUTED" default:"false"`
	AudioSeed       int64         `envconfig:"AUDIO_SEED" default:"0"` // 0 - случайный

	// Ассеты
	AssetBase     string  `envconfig:"ASSET_BASE" default:"./public"`
	AssetMaxBytes int64   `envconfig:"ASSET_MAX_BYTES" default:"67108864"`
	MusicAsset    string  `envconfig:"MUSIC_ASSET" default:"soothing-music.mp3"` // пусто - без музыки
	MusicGain     float64 `envconfig:"MUSIC_GAIN" default:"0.3"`
	NarrationDir  string  `envconfig:"NARRATION_DIR" default:"./public/narration"`

	// Хранилища (пусто - в памяти)
	RedisURL       string        `envconfig:"REDIS_URL"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	DBMaxConns     int32         `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	SessionIdleTTL time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`

	SecretsDir string `envconfig:"SECRETS_DIR" default:"/run/secrets"`
}

// Load читает конфигурацию из окружения. DATABASE_URL и REDIS_URL, если не
// заданы, берутся из файлов секретов database_url и redis_url, когда они есть.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	var err error
	if cfg.DatabaseURL == "" {
		if cfg.DatabaseURL, err = optionalSecret(cfg.SecretsDir, "database_url"); err != nil {
			return nil, err
		}
	}
	if cfg.RedisURL == "" {
		if cfg.RedisURL, err = optionalSecret(cfg.SecretsDir, "redis_url"); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет значения, которые envconfig принимает, но которые не имеют смысла.
func (c *Config) Validate() error {
	var problems []string
	if c.AudioSampleRate < 8000 || c.AudioSampleRate > 192000 {
		problems = append(problems, fmt.Sprintf("AUDIO_SAMPLE_RATE %d out of range", c.AudioSampleRate))
	}
	if c.AudioMasterGain < 0 || c.AudioMasterGain > 1 {
		problems = append(problems, "AUDIO_MASTER_GAIN must be within [0,1]")
	}
	if c.MusicGain < 0 || c.MusicGain > 1 {
		problems = append(problems, "MUSIC_GAIN must be within [0,1]")
	}
	for name, d := range map[string]time.Duration{
		"AUDIO_CROSSFADE":   c.AudioCrossfade,
		"AUDIO_MUTE_FADE":   c.AudioMuteFade,
		"AUDIO_UNMUTE_FADE": c.AudioUnmuteFade,
		"AUDIO_STOP_MARGIN": c.AudioStopMargin,
	} {
		if d < 0 {
			problems = append(problems, name+" must not be negative")
		}
	}
	if c.AssetMaxBytes <= 0 {
		problems = append(problems, "ASSET_MAX_BYTES must be positive")
	}
	if c.SessionIdleTTL <= 0 {
		problems = append(problems, "SESSION_IDLE_TTL must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:      c.LogLevel,
		Encoding:   c.LogEncoding,
		OutputPath: c.LogFile,
	}
}

func (c *Config) Ambient() ambient.Config {
	return ambient.Config{
		Crossfade:  c.AudioCrossfade,
		MuteFade:   c.AudioMuteFade,
		UnmuteFade: c.AudioUnmuteFade,
		StopMargin: c.AudioStopMargin,
		MasterGain: c.AudioMasterGain,
		StartMuted: c.AudioStartMuted,
	}
}

// optionalSecret читает секрет в формате Docker Secrets; отсутствие файла не ошибка.
func optionalSecret(dir, name string) (string, error) {
	if dir == "" {
		return "", nil
	}
	path := filepath.Join(dir, name)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	secret := strings.TrimSpace(string(b))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

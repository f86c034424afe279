package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/promptlab")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Providers.OpenAI.BaseURL)
	assert.Equal(t, "http://localhost:11434", cfg.Providers.Ollama.BaseURL)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PROMPTLAB_PORT", "9090")
	t.Setenv("PROMPTLAB_ENV", "production")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey)
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadMissingRedisURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/promptlab")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoadInvalidPort(t *testing.T) {
	setRequired(t)
	t.Setenv("PROMPTLAB_PORT", "99999")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROMPTLAB_PORT")
}

func TestLoadMissingProviderKeysIsNotFatal(t *testing.T) {
	setRequired(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Providers.OpenAI.APIKey)
	assert.Empty(t, cfg.Providers.Anthropic.APIKey)
}

func TestEnvIntBadValueUsesDefault(t *testing.T) {
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "not-a-number")
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the prompt-lab server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Providers ProvidersConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type ProvidersConfig struct {
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Ollama    OllamaConfig
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

type OllamaConfig struct {
	BaseURL string
}

// Load reads configuration from environment variables and returns a validated
// Config. Provider API keys are optional here: a missing key makes that
// provider report itself uncredentialed, which job creation surfaces as a
// configuration error rather than refusing to boot.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PROMPTLAB_PORT", 8080),
			Env:  envString("PROMPTLAB_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			},
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
			},
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PROMPTLAB_PORT must be in (0, 65535], got %d", c.Server.Port)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

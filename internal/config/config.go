// Package config loads gateway configuration from the environment, with
// optional .env files for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the complete gateway configuration, fixed at startup. Nothing in
// here is reconfigurable at runtime.
type Config struct {
	ListenAddr string
	LogLevel   string

	Provider ProviderConfig
	Limiter  LimiterConfig
	Usage    UsageConfig

	// AdminPassword gates the usage summary endpoint. Empty disables it.
	AdminPassword string
}

// ProviderConfig configures the upstream AI provider client.
type ProviderConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	ChatModel   string
	SpeechModel string
}

// LimiterConfig configures the chat-endpoint rate limiter.
type LimiterConfig struct {
	MaxRequests   int
	Window        time.Duration
	SweepInterval time.Duration
}

// UsageConfig configures the usage tracker. An empty RedisAddr selects the
// in-process tracker.
type UsageConfig struct {
	RedisAddr string
	KeyPrefix string
}

// LoadEnvFiles loads environment variables from .env files.
// Loads in priority order: .env.local (highest) → .env → system environment (lowest)
func LoadEnvFiles() error {
	envFiles := []string{".env.local", ".env"}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

// Load reads the configuration from the environment. The provider API key is
// the only hard requirement.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr: getEnv("GATEWAY_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Provider: ProviderConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Timeout:     getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second),
			ChatModel:   getEnv("CHAT_MODEL", "gpt-4o-mini"),
			SpeechModel: getEnv("SPEECH_MODEL", "tts-1"),
		},
		Limiter: LimiterConfig{
			MaxRequests:   getEnvInt("RATE_LIMIT_MAX", 20),
			Window:        getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			SweepInterval: getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		},
		Usage: UsageConfig{
			RedisAddr: getEnv("REDIS_ADDR", ""),
			KeyPrefix: getEnv("USAGE_KEY_PREFIX", "usage:"),
		},
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.Limiter.MaxRequests <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", cfg.Limiter.MaxRequests)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// Package config loads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	DatabaseURL     string
	RedisURL        string
	NatsURL         string
	NatsToken       string
	LogLevel        string
	LogFile         string
	AnthropicAPIKey string
	AnthropicModel  string
	TaxonomyFile    string
	SlackBotToken   string
	SlackChannel    string

	BatchSize     int
	Concurrency   int
	MaxAttempts   int
	RetryDelay    time.Duration
	BatchEstimate time.Duration

	PollInterval time.Duration
	JobTimeout   time.Duration
	JobTTL       time.Duration
}

func Load() Config {
	return Config{
		Port:            envInt("INSIGHTS_PORT", 8760),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		RedisURL:        envStr("REDIS_URL", ""),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		LogFile:         envStr("LOG_FILE", ""),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("INSIGHTS_MODEL", "claude-sonnet-4-20250514"),
		TaxonomyFile:    envStr("TAXONOMY_FILE", ""),
		SlackBotToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:    envStr("SLACK_CHANNEL", ""),

		BatchSize:     envInt("CLASSIFIER_BATCH_SIZE", 25),
		Concurrency:   envInt("CLASSIFIER_CONCURRENCY", 3),
		MaxAttempts:   envInt("CLASSIFIER_MAX_ATTEMPTS", 3),
		RetryDelay:    envDuration("CLASSIFIER_RETRY_DELAY", 2*time.Second),
		BatchEstimate: envDuration("CLASSIFIER_BATCH_ESTIMATE", 8*time.Second),

		PollInterval: envDuration("INSIGHTS_POLL_INTERVAL", 3*time.Second),
		JobTimeout:   envDuration("INSIGHTS_JOB_TIMEOUT", 30*time.Minute),
		JobTTL:       envDuration("JOB_TTL", 24*time.Hour),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Package config loads daemon settings from an optional YAML file with
// environment variable overrides (SENTINEL_*).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sentinel configuration.
type Config struct {
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // "text" or "json"
	Feed      FeedConfig     `yaml:"feed"`
	Flagging  FlaggingConfig `yaml:"flagging"`
	Queue     QueueConfig    `yaml:"queue"`
	Store     StoreConfig    `yaml:"store"`
	Server    ServerConfig   `yaml:"server"`
	Analysis  AnalysisConfig `yaml:"analysis"`
	Webhook   WebhookConfig  `yaml:"webhook"`
}

// FeedConfig holds upstream feed settings.
type FeedConfig struct {
	URL              string        `yaml:"url"`
	Token            string        `yaml:"token"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"` // 0 = uncapped
	FallbackInterval time.Duration `yaml:"fallback_interval"`
}

// FlaggingConfig holds rule engine settings.
type FlaggingConfig struct {
	LargePushThreshold int  `yaml:"large_push_threshold"`
	DummyWarnings      bool `yaml:"dummy_warnings"`
}

// QueueConfig holds bounded event log settings.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// StoreConfig holds warnings store settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	StreamTick   time.Duration `yaml:"stream_tick"`
	AllowOrigins []string      `yaml:"allow_origins"`
}

// AnalysisConfig holds enrichment settings.
type AnalysisConfig struct {
	OpenAIAPIKey string `yaml:"openai_api_key"`
	Model        string `yaml:"model"`
}

// WebhookConfig holds the optional notification webhook.
type WebhookConfig struct {
	URL string `yaml:"url"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Feed: FeedConfig{
			URL:              "https://api.github.com/events",
			BackoffBase:      time.Second,
			FallbackInterval: 60 * time.Second,
		},
		Flagging: FlaggingConfig{
			LargePushThreshold: 100,
			DummyWarnings:      true,
		},
		Queue:  QueueConfig{Capacity: 10_000},
		Store:  StoreConfig{Path: "sentinel.db"},
		Server: ServerConfig{Addr: ":8080", StreamTick: 500 * time.Millisecond},
		Analysis: AnalysisConfig{
			Model: "gpt-4o-mini",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Feed.URL == "" {
		return Config{}, fmt.Errorf("config: feed.url must not be empty")
	}
	return cfg, nil
}

// applyEnv layers SENTINEL_* environment variables over the config.
func applyEnv(cfg *Config) {
	setString(&cfg.LogLevel, "SENTINEL_LOG_LEVEL")
	setString(&cfg.LogFormat, "SENTINEL_LOG_FORMAT")
	setString(&cfg.Feed.URL, "SENTINEL_FEED_URL")
	setString(&cfg.Feed.Token, "SENTINEL_GITHUB_TOKEN")
	setDuration(&cfg.Feed.BackoffBase, "SENTINEL_BACKOFF_BASE")
	setDuration(&cfg.Feed.BackoffMax, "SENTINEL_BACKOFF_MAX")
	setDuration(&cfg.Feed.FallbackInterval, "SENTINEL_FALLBACK_INTERVAL")
	setInt(&cfg.Flagging.LargePushThreshold, "SENTINEL_LARGE_PUSH_THRESHOLD")
	setBool(&cfg.Flagging.DummyWarnings, "SENTINEL_DUMMY_WARNINGS")
	setInt(&cfg.Queue.Capacity, "SENTINEL_QUEUE_CAPACITY")
	setString(&cfg.Store.Path, "SENTINEL_STORE_PATH")
	setString(&cfg.Server.Addr, "SENTINEL_ADDR")
	setDuration(&cfg.Server.StreamTick, "SENTINEL_STREAM_TICK")
	setStrings(&cfg.Server.AllowOrigins, "SENTINEL_ALLOW_ORIGINS")
	setString(&cfg.Analysis.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.Analysis.Model, "SENTINEL_ANALYSIS_MODEL")
	setString(&cfg.Webhook.URL, "SENTINEL_WEBHOOK_URL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStrings(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

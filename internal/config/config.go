package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port"`
	// CrawlSecret guards the crawl-trigger endpoint. Empty means open
	// access (local use only).
	CrawlSecret string `yaml:"crawl_secret"`
}

// ScheduleConfig configures the periodic crawl.
type ScheduleConfig struct {
	CrawlInterval string `yaml:"crawl_interval"`
}

// ParseCrawlInterval returns the crawl interval as time.Duration.
func (s ScheduleConfig) ParseCrawlInterval() time.Duration {
	d, err := time.ParseDuration(s.CrawlInterval)
	if err != nil {
		return 6 * time.Hour
	}
	return d
}

// CrawlerConfig tunes the chart crawler.
type CrawlerConfig struct {
	// Keywords are the search shards merged per page. Defaults to the
	// built-in suno shard set when empty.
	Keywords []string `yaml:"keywords"`
	// RequestInterval is the minimum spacing between upstream calls.
	RequestInterval string `yaml:"request_interval"`
}

// ParseRequestInterval returns the upstream call spacing.
func (c CrawlerConfig) ParseRequestInterval() time.Duration {
	d, err := time.ParseDuration(c.RequestInterval)
	if err != nil {
		return 1500 * time.Millisecond
	}
	return d
}

// AlertsConfig configures crawl-failure notification destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./sunoradar.db"},
		Server:   ServerConfig{Port: 8080},
		Schedule: ScheduleConfig{CrawlInterval: "6h"},
		Crawler:  CrawlerConfig{RequestInterval: "1500ms"},
		Alerts:   AlertsConfig{},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SUNORADAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SUNORADAR_CRAWL_SECRET"); v != "" {
		cfg.Server.CrawlSecret = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}

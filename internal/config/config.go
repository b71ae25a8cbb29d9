// Package config loads the bot configuration from a JSON credentials file
// and environment variables. Environment variables win over the file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
)

// DefaultCredentialsFile is read when CREDENTIALS_FILE is not set.
const DefaultCredentialsFile = "./credentials.json"

// Duration is a time.Duration written as "60s" or "15m" in JSON.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds the application configuration.
type Config struct {
	DiscordToken   string   `json:"discord_token"`
	GuildID        string   `json:"guild_id"`
	DatabasePath   string   `json:"database_path"`
	ScoreboardURL  string   `json:"scoreboard_url"`
	TelegramToken  string   `json:"telegram_token"`
	OwnerChatID    int64    `json:"owner_chat_id"`
	MetricsAddr    string   `json:"metrics_addr"`
	LogLevel       string   `json:"log_level"`
	TickerInterval Duration `json:"ticker_interval"`
	NewsInterval   Duration `json:"news_interval"`
	BrowserLimit   int      `json:"browser_limit"`
	AlertAfter     int      `json:"alert_after_ticks"`
}

func defaults() Config {
	return Config{
		DatabasePath:   "./data/toonbot.db",
		ScoreboardURL:  "https://www.flashscore.com",
		LogLevel:       "info",
		TickerInterval: Duration(60 * time.Second),
		NewsInterval:   Duration(15 * time.Minute),
		BrowserLimit:   2,
		AlertAfter:     10,
	}
}

// Load reads the credentials file, applies environment overrides and
// validates the result. A missing credentials file is not an error.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("CREDENTIALS_FILE")
	if path == "" {
		path = DefaultCredentialsFile
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"DISCORD_TOKEN":  &cfg.DiscordToken,
		"GUILD_ID":       &cfg.GuildID,
		"DATABASE_PATH":  &cfg.DatabasePath,
		"SCOREBOARD_URL": &cfg.ScoreboardURL,
		"TELEGRAM_TOKEN": &cfg.TelegramToken,
		"METRICS_ADDR":   &cfg.MetricsAddr,
		"LOG_LEVEL":      &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("OWNER_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid OWNER_CHAT_ID %q: %w", v, err)
		}
		cfg.OwnerChatID = id
	}

	durations := map[string]*Duration{
		"TICKER_INTERVAL": &cfg.TickerInterval,
		"NEWS_INTERVAL":   &cfg.NewsInterval,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = Duration(d)
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("discord_token is required")
	}
	if (c.TelegramToken == "") != (c.OwnerChatID == 0) {
		return fmt.Errorf("telegram_token and owner_chat_id must be set together")
	}
	if c.TickerInterval <= 0 || c.NewsInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	return nil
}

// OwnerAlerts reports whether owner alerts over Telegram are configured.
func (c *Config) OwnerAlerts() bool {
	return c.TelegramToken != "" && c.OwnerChatID != 0
}

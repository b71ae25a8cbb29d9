package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"CREDENTIALS_FILE", "DISCORD_TOKEN", "GUILD_ID", "DATABASE_PATH", "SCOREBOARD_URL",
	"TELEGRAM_TOKEN", "OWNER_CHAT_ID", "METRICS_ADDR", "LOG_LEVEL", "TICKER_INTERVAL", "NEWS_INTERVAL",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			wantErr: true,
		},
		{
			name: "token from env, defaults applied",
			env:  map[string]string{"DISCORD_TOKEN": "tok"},
			want: func() *Config {
				c := defaults()
				c.DiscordToken = "tok"
				return &c
			}(),
		},
		{
			name: "file values",
			file: `{
				"discord_token": "file-tok",
				"database_path": "/var/lib/toonbot.db",
				"telegram_token": "tg",
				"owner_chat_id": 42,
				"ticker_interval": "30s",
				"news_interval": "5m",
				"metrics_addr": ":9100"
			}`,
			want: func() *Config {
				c := defaults()
				c.DiscordToken = "file-tok"
				c.DatabasePath = "/var/lib/toonbot.db"
				c.TelegramToken = "tg"
				c.OwnerChatID = 42
				c.TickerInterval = Duration(30 * time.Second)
				c.NewsInterval = Duration(5 * time.Minute)
				c.MetricsAddr = ":9100"
				return &c
			}(),
		},
		{
			name: "env overrides file",
			file: `{"discord_token": "file-tok", "log_level": "warn"}`,
			env:  map[string]string{"DISCORD_TOKEN": "env-tok", "TICKER_INTERVAL": "2m"},
			want: func() *Config {
				c := defaults()
				c.DiscordToken = "env-tok"
				c.LogLevel = "warn"
				c.TickerInterval = Duration(2 * time.Minute)
				return &c
			}(),
		},
		{
			name:    "malformed file",
			file:    `{"discord_token": `,
			wantErr: true,
		},
		{
			name:    "bad interval",
			file:    `{"discord_token": "t", "news_interval": "soon"}`,
			wantErr: true,
		},
		{
			name:    "telegram token without owner",
			env:     map[string]string{"DISCORD_TOKEN": "t", "TELEGRAM_TOKEN": "tg"},
			wantErr: true,
		},
		{
			name:    "invalid owner id",
			env:     map[string]string{"DISCORD_TOKEN": "t", "TELEGRAM_TOKEN": "tg", "OWNER_CHAT_ID": "me"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			path := filepath.Join(t.TempDir(), "credentials.json")
			if tt.file != "" {
				if err := os.WriteFile(path, []byte(tt.file), 0o600); err != nil {
					t.Fatalf("write credentials: %v", err)
				}
			}
			t.Setenv("CREDENTIALS_FILE", path)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got config %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOwnerAlerts(t *testing.T) {
	if (&Config{}).OwnerAlerts() {
		t.Error("empty config should not enable alerts")
	}
	if !(&Config{TelegramToken: "t", OwnerChatID: 1}).OwnerAlerts() {
		t.Error("expected alerts enabled")
	}
}

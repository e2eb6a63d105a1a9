package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL         string
	ServerAddr          string
	WorkflowTTL         time.Duration
	SweepInterval       time.Duration
	ExternalCallTimeout time.Duration

	DiscordBotToken string
	DiscordAdminID  int64

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRefreshToken string
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "playlist_hub")
		pass := getenv("POSTGRES_PASSWORD", "playlist_hub_pass")
		db := getenv("POSTGRES_DB", "playlist_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	adminID, err := parseInt64(getenv("DISCORD_ADMIN_ID", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISCORD_ADMIN_ID: %w", err)
	}

	return &Config{
		DatabaseURL:         dsn,
		ServerAddr:          getenv("SERVER_ADDR", "0.0.0.0:8080"),
		WorkflowTTL:         parseDuration(getenv("WORKFLOW_TTL", "24h"), 24*time.Hour),
		SweepInterval:       parseDuration(getenv("SWEEP_INTERVAL", "5m"), 5*time.Minute),
		ExternalCallTimeout: parseDuration(getenv("EXTERNAL_CALL_TIMEOUT", "10s"), 10*time.Second),
		DiscordBotToken:     os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordAdminID:      adminID,
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRefreshToken: os.Getenv("SPOTIFY_REFRESH_TOKEN"),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt64(val string) (int64, error) {
	if val == "" {
		return 0, nil
	}
	return strconv.ParseInt(val, 10, 64)
}

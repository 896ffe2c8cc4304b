package core

import (
	"time"
)

const (
	// DefaultServerPort is the watch mode HTTP port
	DefaultServerPort = 8080
	// DefaultRequestsPerSecond bounds chunked Spotify calls
	DefaultRequestsPerSecond = 5.0
	// DefaultDedupCapacity matches the Spotify limit of 10000 items per playlist
	DefaultDedupCapacity = 10000
	// DefaultDedupFalsePositiveRate sizes the pending-set bloom filter
	DefaultDedupFalsePositiveRate = 0.001
	// DefaultWatchInterval is the delay between watch mode runs
	DefaultWatchInterval = 30 * time.Minute
	// MinWatchInterval keeps watch mode from hammering the API
	MinWatchInterval = time.Minute
)

type Config struct {
	Spotify SpotifyConfig
	Server  ServerConfig
	Log     LogConfig
	App     AppConfig
	Journal JournalConfig
}

type SpotifyConfig struct {
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	TokenPath         string
	PendingPlaylistID string
	RequestsPerSecond float64
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level string
}

type AppConfig struct {
	DedupCapacity          int
	DedupFalsePositiveRate float64
	WatchInterval          time.Duration
}

type JournalConfig struct {
	// Path of the SQLite journal. Empty disables journaling.
	Path string
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURL:       "http://127.0.0.1:8080/callback",
			TokenPath:         "./spotify_token.json",
			RequestsPerSecond: DefaultRequestsPerSecond,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		App: AppConfig{
			DedupCapacity:          DefaultDedupCapacity,
			DedupFalsePositiveRate: DefaultDedupFalsePositiveRate,
			WatchInterval:          DefaultWatchInterval,
		},
		Journal: JournalConfig{
			Path: "./pendingctl.db",
		},
	}
}

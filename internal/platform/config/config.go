package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Payload schemas accepted by PAYLOAD_SCHEMA.
const (
	SchemaObject    = "object"
	SchemaPositions = "positions"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	TokenTTL           time.Duration `env:"TOKEN_TTL" default:"24h"`
	ShortTokenTTL      time.Duration `env:"SHORT_TOKEN_TTL" default:"5s"`
	EnableShortTokens  bool          `env:"ENABLE_SHORT_TOKENS" default:"true"`
	TokenPurgeInterval time.Duration `env:"TOKEN_PURGE_INTERVAL" default:"1m"`
	TokenPurgeGrace    time.Duration `env:"TOKEN_PURGE_GRACE" default:"1h"`

	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" default:"10s"`
	WebSocketPath   string        `env:"WS_PATH" default:"/ws"`
	PayloadSchema   string        `env:"PAYLOAD_SCHEMA" default:"object"`
	PositionsLength int           `env:"POSITIONS_LENGTH" default:"17"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRatePerSecond float64 `env:"CONNECTION_RATE_PER_SECOND" default:"10"`
	ConnectionRateBurst     int     `env:"CONNECTION_RATE_BURST" default:"20"`
	TokenRatePerSecond      float64 `env:"TOKEN_RATE_PER_SECOND" default:"5"`
	TokenRateBurst          int     `env:"TOKEN_RATE_BURST" default:"20"`
	AllowedOrigins          string  `env:"ALLOWED_ORIGINS"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsDevelopment reports whether the server runs with APP_ENV=development.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Origins splits ALLOWED_ORIGINS into its trimmed, non-empty entries.
func (c *Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func validate(cfg *Config) error {
	positive := map[string]time.Duration{
		"TOKEN_TTL":            cfg.TokenTTL,
		"SHORT_TOKEN_TTL":      cfg.ShortTokenTTL,
		"TOKEN_PURGE_INTERVAL": cfg.TokenPurgeInterval,
		"SWEEP_INTERVAL":       cfg.SweepInterval,
		"SHUTDOWN_TIMEOUT":     cfg.ShutdownTimeout,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.TokenPurgeGrace < 0 {
		return errors.New("TOKEN_PURGE_GRACE must not be negative")
	}

	if cfg.ShortTokenTTL > cfg.TokenTTL {
		return errors.New("SHORT_TOKEN_TTL must not exceed TOKEN_TTL")
	}

	if !strings.HasPrefix(cfg.WebSocketPath, "/") {
		return fmt.Errorf("WS_PATH must start with '/', got %q", cfg.WebSocketPath)
	}

	switch cfg.PayloadSchema {
	case SchemaObject:
	case SchemaPositions:
		if cfg.PositionsLength <= 0 {
			return errors.New("POSITIONS_LENGTH must be positive when PAYLOAD_SCHEMA=positions")
		}
	default:
		return fmt.Errorf("PAYLOAD_SCHEMA must be %q or %q, got %q", SchemaObject, SchemaPositions, cfg.PayloadSchema)
	}

	if cfg.MaxWebSocketConnections <= 0 || cfg.MaxConnectionsPerIP <= 0 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS and MAX_CONNECTIONS_PER_IP must be positive")
	}
	if cfg.ConnectionRatePerSecond <= 0 || cfg.ConnectionRateBurst <= 0 {
		return errors.New("CONNECTION_RATE_PER_SECOND and CONNECTION_RATE_BURST must be positive")
	}
	if cfg.TokenRatePerSecond <= 0 || cfg.TokenRateBurst <= 0 {
		return errors.New("TOKEN_RATE_PER_SECOND and TOKEN_RATE_BURST must be positive")
	}

	return nil
}

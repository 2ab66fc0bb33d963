package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string  `env:"APP_ENV" default:"development"`
	Port        string  `env:"PORT" default:"8080"`
	AppURL      string  `env:"APP_URL" default:"http://localhost:8080"`
	JWTSecret   string  `env:"JWT_SECRET"`
	AdminToken  string  `env:"ADMIN_TOKEN"`
	RedisURL    string  `env:"REDIS_URL"`
	LogLevel    string  `env:"LOG_LEVEL" default:"info"`
	LogFormat   string  `env:"LOG_FORMAT" default:"text"`
	WSRateLimit float64 `env:"WS_RATE_LIMIT" default:"10"`
	WSRateBurst int     `env:"WS_RATE_BURST" default:"20"`

	MaxConnections      int `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int `env:"MAX_CONNECTIONS_PER_IP" default:"50"`

	DispatchInterval   time.Duration `env:"DISPATCH_INTERVAL" default:"100ms"`
	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT" default:"5s"`
	UpdateTTL          time.Duration `env:"UPDATE_TTL" default:"1m"`
	SendBuffer         int           `env:"SEND_BUFFER" default:"64"`
	PublishBuffer      int           `env:"PUBLISH_BUFFER" default:"4096"`
	MaxQueuePerUser    int           `env:"MAX_QUEUE_PER_USER" default:"1000"`
	MaxSessionsPerUser int           `env:"MAX_SESSIONS_PER_USER" default:"50"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
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

func validate(cfg *Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}

	if cfg.RedisURL != "" {
		if _, err := url.Parse(cfg.RedisURL); err != nil {
			return fmt.Errorf("REDIS_URL must be a valid URL: %w", err)
		}
	}

	if cfg.HeartbeatInterval <= cfg.DispatchInterval {
		return fmt.Errorf("HEARTBEAT_INTERVAL (%s) must be longer than DISPATCH_INTERVAL (%s)", cfg.HeartbeatInterval, cfg.DispatchInterval)
	}

	positive := map[string]int{
		"SEND_BUFFER":            cfg.SendBuffer,
		"PUBLISH_BUFFER":         cfg.PublishBuffer,
		"MAX_QUEUE_PER_USER":     cfg.MaxQueuePerUser,
		"MAX_SESSIONS_PER_USER":  cfg.MaxSessionsPerUser,
		"WS_RATE_BURST":          cfg.WSRateBurst,
		"MAX_CONNECTIONS":        cfg.MaxConnections,
		"MAX_CONNECTIONS_PER_IP": cfg.MaxConnectionsPerIP,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}

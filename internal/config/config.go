// Package config loads client settings from the environment. A .env file in
// the working directory is honored by the binary through godotenv.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Push transports.
const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
	TransportNATS      = "nats"
)

// Config holds every setting the client reads.
type Config struct {
	APIURL    string `env:"SUSHI_API_URL"    envDefault:"http://localhost:8000"`
	SocketURL string `env:"SUSHI_SOCKET_URL" envDefault:"ws://localhost:8000/ws"`
	Token     string `env:"SUSHI_TOKEN"`

	PushTransport string `env:"SUSHI_PUSH_TRANSPORT" envDefault:"websocket"`
	RedisAddr     string `env:"SUSHI_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisDB       int    `env:"SUSHI_REDIS_DB"       envDefault:"0"`
	RedisPrefix   string `env:"SUSHI_REDIS_PREFIX"   envDefault:"sushi"`
	NATSURL       string `env:"SUSHI_NATS_URL"       envDefault:"nats://127.0.0.1:4222"`
	NATSPrefix    string `env:"SUSHI_NATS_PREFIX"    envDefault:"sushi"`

	RequestTimeout time.Duration `env:"SUSHI_REQUEST_TIMEOUT" envDefault:"10s"`
	ReconnectWait  time.Duration `env:"SUSHI_RECONNECT_WAIT"  envDefault:"2s"`
	LogLevel       string        `env:"SUSHI_LOG_LEVEL"       envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the client configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	switch cfg.PushTransport {
	case TransportWebSocket, TransportRedis, TransportNATS:
	default:
		return Config{}, fmt.Errorf("unknown push transport %q", cfg.PushTransport)
	}
	if cfg.RequestTimeout <= 0 {
		return Config{}, fmt.Errorf("request timeout must be positive, got %s", cfg.RequestTimeout)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, fmt.Errorf("log level: %w", err)
	}
	return cfg, nil
}

// NewLogger returns a logger at the configured level.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

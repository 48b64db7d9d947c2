// Package config loads ringcast's runtime configuration from an
// optional .env file plus environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting ringcast-server needs at startup.
type Config struct {
	ListenAddr      string        `env:"RINGCAST_LISTEN_ADDR" envDefault:":8088"`
	MetricsAddr     string        `env:"RINGCAST_METRICS_ADDR" envDefault:":9095"`
	BufSize         int           `env:"RINGCAST_BUFSIZE" envDefault:"65536"`
	NATSUrl         string        `env:"RINGCAST_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NATSSubject     string        `env:"RINGCAST_NATS_SUBJECT" envDefault:"ringcast.frames"`
	HeartbeatPeriod time.Duration `env:"RINGCAST_HEARTBEAT_PERIOD" envDefault:"27s"`
	HeartbeatWait   time.Duration `env:"RINGCAST_HEARTBEAT_WAIT" envDefault:"30s"`
	MaxConnections  int           `env:"RINGCAST_MAX_CONNECTIONS" envDefault:"10000"`
	ConnectRatePS   float64       `env:"RINGCAST_CONNECT_RATE" envDefault:"200"`
	LogLevel        string        `env:"RINGCAST_LOG_LEVEL" envDefault:"info"`
	LogPretty       bool          `env:"RINGCAST_LOG_PRETTY" envDefault:"false"`

	CPURejectThreshold float64       `env:"RINGCAST_CPU_REJECT_THRESHOLD" envDefault:"90"`
	MaxGoroutines      int           `env:"RINGCAST_MAX_GOROUTINES" envDefault:"200000"`
	ResourceInterval   time.Duration `env:"RINGCAST_RESOURCE_INTERVAL" envDefault:"15s"`
}

// Load reads a .env file if present (missing is not an error) and then
// parses environment variables into a Config using struct tags.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}

	if cfg.BufSize <= 0 {
		return Config{}, fmt.Errorf("config: RINGCAST_BUFSIZE must be positive, got %d", cfg.BufSize)
	}
	if cfg.HeartbeatWait <= cfg.HeartbeatPeriod {
		return Config{}, fmt.Errorf("config: RINGCAST_HEARTBEAT_WAIT must exceed RINGCAST_HEARTBEAT_PERIOD")
	}
	if cfg.ResourceInterval <= 0 {
		return Config{}, fmt.Errorf("config: RINGCAST_RESOURCE_INTERVAL must be positive, got %s", cfg.ResourceInterval)
	}

	return cfg, nil
}

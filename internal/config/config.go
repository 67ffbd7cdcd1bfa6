package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings. Environment variables override the
// optional YAML file, which overrides the defaults.
type Config struct {
	Port     int
	DataDir  string
	LogLevel string

	PresenceTimeout time.Duration
	SweepInterval   time.Duration
	IdleGrace       time.Duration
	ReapInterval    time.Duration

	WriteQueueSize int
}

// fileConfig is the YAML shape. Durations are strings ("90s", "2m") so
// the file reads the same as the env variables.
type fileConfig struct {
	Port            *int    `yaml:"port"`
	DataDir         *string `yaml:"data_dir"`
	LogLevel        *string `yaml:"log_level"`
	PresenceTimeout *string `yaml:"presence_timeout"`
	SweepInterval   *string `yaml:"sweep_interval"`
	IdleGrace       *string `yaml:"idle_grace"`
	ReapInterval    *string `yaml:"reap_interval"`
	WriteQueueSize  *int    `yaml:"write_queue_size"`
}

// Load builds the configuration. If COLLABD_CONFIG names a YAML file it
// is read first; environment variables then override individual fields.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            8632,
		DataDir:         "./data",
		LogLevel:        "info",
		PresenceTimeout: 60 * time.Second,
		SweepInterval:   10 * time.Second,
		IdleGrace:       2 * time.Minute,
		ReapInterval:    30 * time.Second,
		WriteQueueSize:  1024,
	}

	if path := os.Getenv("COLLABD_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = envInt("COLLABD_PORT", cfg.Port)
	cfg.DataDir = envStr("COLLABD_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = envStr("COLLABD_LOG_LEVEL", cfg.LogLevel)
	cfg.PresenceTimeout = envDuration("COLLABD_PRESENCE_TIMEOUT", cfg.PresenceTimeout)
	cfg.SweepInterval = envDuration("COLLABD_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.IdleGrace = envDuration("COLLABD_IDLE_GRACE", cfg.IdleGrace)
	cfg.ReapInterval = envDuration("COLLABD_REAP_INTERVAL", cfg.ReapInterval)
	cfg.WriteQueueSize = envInt("COLLABD_WRITE_QUEUE_SIZE", cfg.WriteQueueSize)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.DataDir != nil {
		c.DataDir = *fc.DataDir
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.WriteQueueSize != nil {
		c.WriteQueueSize = *fc.WriteQueueSize
	}
	for _, f := range []struct {
		key string
		raw *string
		dst *time.Duration
	}{
		{"presence_timeout", fc.PresenceTimeout, &c.PresenceTimeout},
		{"sweep_interval", fc.SweepInterval, &c.SweepInterval},
		{"idle_grace", fc.IdleGrace, &c.IdleGrace},
		{"reap_interval", fc.ReapInterval, &c.ReapInterval},
	} {
		if f.raw == nil {
			continue
		}
		d, err := time.ParseDuration(*f.raw)
		if err != nil {
			return fmt.Errorf("config file %s: %s: %w", path, f.key, err)
		}
		*f.dst = d
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.PresenceTimeout <= 0 {
		return fmt.Errorf("presence_timeout must be positive, got %s", c.PresenceTimeout)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval)
	}
	if c.SweepInterval > c.PresenceTimeout {
		return fmt.Errorf("sweep_interval %s exceeds presence_timeout %s", c.SweepInterval, c.PresenceTimeout)
	}
	if c.IdleGrace <= 0 {
		return fmt.Errorf("idle_grace must be positive, got %s", c.IdleGrace)
	}
	if c.ReapInterval <= 0 {
		return fmt.Errorf("reap_interval must be positive, got %s", c.ReapInterval)
	}
	if c.WriteQueueSize < 1 {
		return fmt.Errorf("write_queue_size must be positive, got %d", c.WriteQueueSize)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

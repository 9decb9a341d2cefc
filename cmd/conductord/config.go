package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/quantfold/conductor"
	"github.com/quantfold/conductor/job"
)

// Config is the daemon's YAML configuration. Durations are Go duration
// strings ("15s", "30m").
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Engine    EngineConfig    `yaml:"engine"`
	Feed      FeedConfig      `yaml:"feed"`
	Broker    BrokerConfig    `yaml:"broker"`
	Cron      []CronEntry     `yaml:"cron"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type StoreConfig struct {
	Backend       string `yaml:"backend"` // memory, sqlite, postgres, redis, mongo
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type SchedulerConfig struct {
	RetryInitialDelay string `yaml:"retry_initial_delay"`
	RetryMaxDelay     string `yaml:"retry_max_delay"`
	DefaultMaxRetries int    `yaml:"default_max_retries"`
	WakeCheckCap      string `yaml:"wake_check_cap"`
	IdleDelay         string `yaml:"idle_delay"`
	OptimizeCooldown  string `yaml:"optimize_cooldown"`
	ShutdownTimeout   string `yaml:"shutdown_timeout"`
	AutoOptimize      *bool  `yaml:"auto_optimize"`
}

type EngineConfig struct {
	Binary       string   `yaml:"binary"`
	WorkDir      string   `yaml:"workdir"`
	BuildCommand []string `yaml:"build_command"`
	BuildDir     string   `yaml:"build_dir"`
}

type FeedConfig struct {
	Listen   string `yaml:"listen"`
	BasePath string `yaml:"base_path"`
}

type BrokerConfig struct {
	// PaperStartingCash seeds the paper brokerage. A live brokerage
	// client would be configured here instead.
	PaperStartingCash string `yaml:"paper_starting_cash"`
}

type CronEntry struct {
	Name        string `yaml:"name"`
	Schedule    string `yaml:"schedule"`
	JobType     string `yaml:"job_type"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
}

// LoadConfig reads, decodes, and validates the config file. Unknown
// keys are rejected so typos fail loudly at startup.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultDaemonConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultDaemonConfig() *Config {
	return &Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{Backend: "memory", MongoDatabase: "conductor"},
		Feed:  FeedConfig{Listen: ":8787", BasePath: "/feed"},
		Engine: EngineConfig{
			Binary: "quantfold-engine",
		},
		Broker: BrokerConfig{PaperStartingCash: "100000"},
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "postgres", "redis", "mongo":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("config: store.sqlite_path required for sqlite backend")
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresDSN == "" {
		return fmt.Errorf("config: store.postgres_dsn required for postgres backend")
	}
	if c.Store.Backend == "redis" && c.Store.RedisAddr == "" {
		return fmt.Errorf("config: store.redis_addr required for redis backend")
	}
	if c.Store.Backend == "mongo" && c.Store.MongoURI == "" {
		return fmt.Errorf("config: store.mongo_uri required for mongo backend")
	}
	for _, entry := range c.Cron {
		if entry.Name == "" {
			return fmt.Errorf("config: cron entry missing name")
		}
		if !job.Type(entry.JobType).Valid() {
			return fmt.Errorf("config: cron entry %q: unknown job type %q", entry.Name, entry.JobType)
		}
	}
	if _, err := c.SchedulerConfig(); err != nil {
		return err
	}
	return nil
}

// SchedulerConfig converts the duration strings into a conductor.Config.
// Empty fields fall through to the library defaults via Normalized.
func (c *Config) SchedulerConfig() (conductor.Config, error) {
	out := conductor.Config{DefaultMaxRetries: c.Scheduler.DefaultMaxRetries}

	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"scheduler.retry_initial_delay", c.Scheduler.RetryInitialDelay, &out.RetryInitialDelay},
		{"scheduler.retry_max_delay", c.Scheduler.RetryMaxDelay, &out.RetryMaxDelay},
		{"scheduler.wake_check_cap", c.Scheduler.WakeCheckCap, &out.WakeCheckCap},
		{"scheduler.idle_delay", c.Scheduler.IdleDelay, &out.IdleDelay},
		{"scheduler.optimize_cooldown", c.Scheduler.OptimizeCooldown, &out.OptimizeCooldown},
		{"scheduler.shutdown_timeout", c.Scheduler.ShutdownTimeout, &out.ShutdownTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return conductor.Config{}, fmt.Errorf("config: %s: invalid duration %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return out.Normalized(), nil
}

// AutoOptimize reports whether idle optimization starts enabled.
func (c *Config) AutoOptimize() bool {
	if c.Scheduler.AutoOptimize == nil {
		return true
	}
	return *c.Scheduler.AutoOptimize
}

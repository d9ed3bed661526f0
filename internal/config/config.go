package config

import (
	"fmt"
	"time"

	"onboarding/pkg/config"
	pkgotel "onboarding/pkg/otel"
)

// AuthConfig controls the admin guard. RequireAdmin is off by default so the
// admin API stays open like the browser clients expect.
type AuthConfig struct {
	RequireAdmin bool   `yaml:"require_admin"`
	CookieName   string `yaml:"cookie_name"`
}

type SeedConfig struct {
	Enabled bool `yaml:"enabled"`
}

type OutboxConfig struct {
	Enabled    bool `yaml:"enabled"`
	IntervalMS int  `yaml:"interval_ms"`
	BatchSize  int  `yaml:"batch_size"`
	MaxRetries int  `yaml:"max_retries"`
}

type DedupConfig struct {
	TTLMinutes int `yaml:"ttl_minutes"`
}

type Config struct {
	DB     config.DBConfig     `yaml:"db"`
	MQ     config.MQConfig     `yaml:"mq"`
	Redis  config.RedisConfig  `yaml:"redis"`
	JWT    config.JWTConfig    `yaml:"jwt"`
	Server config.ServerConfig `yaml:"server"`
	Log    config.LogConfig    `yaml:"log"`
	Otel   pkgotel.Config      `yaml:"otel"`
	Auth   AuthConfig          `yaml:"auth"`
	Seed   SeedConfig          `yaml:"seed"`
	Outbox OutboxConfig        `yaml:"outbox"`
	Dedup  DedupConfig         `yaml:"dedup"`
}

// Default returns the settings used when a key is missing from the yaml files.
func Default() Config {
	return Config{
		DB: config.DBConfig{
			Host:               "localhost",
			Port:               5432,
			User:               "postgres",
			Name:               "onboarding",
			SSLMode:            "disable",
			SlowQueryThreshold: 100,
		},
		MQ: config.MQConfig{
			EventQueue: "journey.app_event.q",
			EventKey:   "app.event.#",
			MaxRetries: 3,
		},
		JWT:    config.JWTConfig{Secret: "dev-secret-change-me", TTLHours: 24},
		Server: config.ServerConfig{Port: ":3000", StaticDir: "public"},
		Log:    config.LogConfig{Level: "info"},
		Otel:   pkgotel.Config{ServiceName: "onboarding", SampleRatio: 1},
		Auth:   AuthConfig{CookieName: "session"},
		Seed:   SeedConfig{Enabled: true},
		Outbox: OutboxConfig{Enabled: true, IntervalMS: 1000, BatchSize: 100, MaxRetries: 5},
		Dedup:  DedupConfig{TTLMinutes: 60 * 24},
	}
}

// Load reads CONFIG_DIR/base.yaml plus the CONFIG_ENV overlay and applies
// environment overrides on top.
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")
	return LoadFrom(env, configDir)
}

func LoadFrom(env, configDir string) (*Config, error) {
	cfg := Default()
	if err := config.Decode(env, configDir, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideLogFromEnv(&cfg.Log)

	cfg.fillBlanks()
	return &cfg, nil
}

// fillBlanks restores defaults for keys set to an unresolved ${VAR}.
func (c *Config) fillBlanks() {
	d := Default()
	if c.JWT.Secret == "" {
		c.JWT.Secret = d.JWT.Secret
	}
	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	if c.MQ.EventQueue == "" {
		c.MQ.EventQueue = d.MQ.EventQueue
	}
	if c.MQ.EventKey == "" {
		c.MQ.EventKey = d.MQ.EventKey
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = d.Auth.CookieName
	}
}

func (c *Config) SessionTTL() time.Duration {
	if c.JWT.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.JWT.TTLHours) * time.Hour
}

func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.Dedup.TTLMinutes) * time.Minute
}

func (c *Config) OutboxInterval() time.Duration {
	return time.Duration(c.Outbox.IntervalMS) * time.Millisecond
}

// WorkerAddr is the health/metrics listen address of the worker.
func WorkerAddr() string {
	return config.GetEnv("WORKER_HTTP_ADDR", ":9091")
}

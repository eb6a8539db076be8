package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Attempts struct {
		MaxOpen          int    `yaml:"max_open"`
		EnforceTimeLimit bool   `yaml:"enforce_time_limit"`
		TimeLimitGrace   string `yaml:"time_limit_grace"`
		StartLockTTL     string `yaml:"start_lock_ttl"`
	} `yaml:"attempts"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values that would otherwise be silently replaced by defaults.
func (c Config) Validate() error {
	for name, raw := range map[string]string{
		"quiz.ttl":                  c.Quiz.TTL,
		"attempts.time_limit_grace": c.Attempts.TimeLimitGrace,
		"attempts.start_lock_ttl":   c.Attempts.StartLockTTL,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config %s: %w", name, err)
		}
	}
	if c.Attempts.MaxOpen < 0 {
		return fmt.Errorf("config attempts.max_open: must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

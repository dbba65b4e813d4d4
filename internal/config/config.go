package config

import (
	"fmt"
	"os"

	"github.com/lazypower/verkeep/internal/retention"
)

// Config holds all verkeep configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Retention RetentionConfig `yaml:"retention"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RetentionConfig mirrors the repository's version retention settings.
// Zero disables a limit.
type RetentionConfig struct {
	MaxVersions                   int `yaml:"max_versions"`
	MaxMajorVersions              int `yaml:"max_major_versions"`
	KeepIntermediateMajorVersions int `yaml:"keep_intermediate_major_versions"`
	MaxMinorVersions              int `yaml:"max_minor_versions"`
	KeepIntermediateMinorVersions int `yaml:"keep_intermediate_minor_versions"`
}

type SweepConfig struct {
	Schedule string `yaml:"schedule"` // cron expression; empty disables the sweep
}

type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Sweep: SweepConfig{
			Schedule: "@hourly",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// ApplyEnv overrides file settings from the environment.
func (c *Config) ApplyEnv() {
	if path := os.Getenv("VERKEEP_DB"); path != "" {
		c.Database.Path = path
	}
}

// RetentionPolicy builds the normalized retention policy. Out-of-range
// values are clamped and reported as warnings rather than rejected.
func (c *Config) RetentionPolicy() (retention.Policy, []string) {
	r := c.Retention
	return retention.Policy{
		MaxVersions: r.MaxVersions,
		Major: retention.Track{
			Max:              r.MaxMajorVersions,
			KeepIntermediate: r.KeepIntermediateMajorVersions,
		},
		Minor: retention.Track{
			Max:              r.MaxMinorVersions,
			KeepIntermediate: r.KeepIntermediateMinorVersions,
		},
	}.Normalize()
}

// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package config loads layered service configuration: built-in defaults,
// then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/shelfmark/shelfmark/internal/recommend"
	"github.com/shelfmark/shelfmark/internal/recommend/candidates"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/shelfmark/config.yaml",
	"/etc/shelfmark/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SHELFMARK_CONFIG_PATH"

// envPrefix namespaces Shelfmark environment variables. Nesting uses a
// double underscore: SHELFMARK_SERVER__PORT -> server.port.
const envPrefix = "SHELFMARK_"

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Host            string        `json:"host" koanf:"host"`
	Port            int           `json:"port" koanf:"port"`
	Timeout         time.Duration `json:"timeout" koanf:"timeout"`
	CORSOrigins     []string      `json:"cors_origins" koanf:"cors_origins"`
	RateLimitReqs   int           `json:"rate_limit_reqs" koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `json:"rate_limit_window" koanf:"rate_limit_window"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level" koanf:"level"`

	// Format is "json" or "console".
	Format string `json:"format" koanf:"format"`

	// Caller adds file:line to every event.
	Caller bool `json:"caller" koanf:"caller"`
}

// StoreConfig configures the embedded badger store backing profiles and
// the durable cache tier.
type StoreConfig struct {
	Path           string        `json:"path" koanf:"path"`
	InMemory       bool          `json:"in_memory" koanf:"in_memory"`
	GCInterval     time.Duration `json:"gc_interval" koanf:"gc_interval"`
	GCDiscardRatio float64       `json:"gc_discard_ratio" koanf:"gc_discard_ratio"`
}

// UpstreamConfig locates the external services the engine reads from.
type UpstreamConfig struct {
	// CatalogURL is the metadata/quality catalog service.
	CatalogURL string `json:"catalog_url" koanf:"catalog_url"`

	// SignalsURL is the vector/graph/collaborative signals service.
	SignalsURL string `json:"signals_url" koanf:"signals_url"`

	// UserStateURL is the ingestion service owning reading state.
	UserStateURL string `json:"user_state_url" koanf:"user_state_url"`

	// Timeout bounds a single upstream call.
	Timeout time.Duration `json:"timeout" koanf:"timeout"`
}

// SweepConfig configures the background profile refresh sweeper.
type SweepConfig struct {
	Enabled  bool          `json:"enabled" koanf:"enabled"`
	Interval time.Duration `json:"interval" koanf:"interval"`
}

// Config is the root service configuration.
type Config struct {
	Server     ServerConfig          `json:"server" koanf:"server"`
	Logging    LoggingConfig         `json:"logging" koanf:"logging"`
	Store      StoreConfig           `json:"store" koanf:"store"`
	Upstream   UpstreamConfig        `json:"upstream" koanf:"upstream"`
	Sweep      SweepConfig           `json:"sweep" koanf:"sweep"`
	Recommend  recommend.Config      `json:"recommend" koanf:"recommend"`
	Categories []candidates.Category `json:"categories" koanf:"categories"`
}

// defaultConfig returns all built-in defaults. They are applied first,
// then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8390,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Store: StoreConfig{
			Path:           "/data/shelfmark",
			InMemory:       false,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Upstream: UpstreamConfig{
			CatalogURL:   "http://localhost:8391",
			SignalsURL:   "http://localhost:8392",
			UserStateURL: "http://localhost:8393",
			Timeout:      10 * time.Second,
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Interval: 15 * time.Minute,
		},
		Recommend: *recommend.DefaultConfig(),
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration invariants across all sections.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}
	if c.Store.GCDiscardRatio <= 0 || c.Store.GCDiscardRatio >= 1 {
		return fmt.Errorf("store.gc_discard_ratio must be in (0,1), got %f", c.Store.GCDiscardRatio)
	}

	if c.Upstream.CatalogURL == "" {
		return fmt.Errorf("upstream.catalog_url is required")
	}
	if c.Upstream.SignalsURL == "" {
		return fmt.Errorf("upstream.signals_url is required")
	}
	if c.Upstream.UserStateURL == "" {
		return fmt.Errorf("upstream.user_state_url is required")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive, got %s", c.Upstream.Timeout)
	}

	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive, got %s", c.Sweep.Interval)
	}

	seen := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Slug == "" {
			return fmt.Errorf("category with empty slug")
		}
		if _, dup := seen[cat.Slug]; dup {
			return fmt.Errorf("duplicate category slug %q", cat.Slug)
		}
		seen[cat.Slug] = struct{}{}
		if len(cat.Subjects) == 0 {
			return fmt.Errorf("category %q has no subjects", cat.Slug)
		}
	}

	return c.Recommend.Validate()
}

// findConfigFile searches the env override and the default paths. Returns
// empty when no file exists, which is not an error.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when set from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated env strings into slices for
// the known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf paths:
// SHELFMARK_SERVER__PORT -> server.port,
// SHELFMARK_RECOMMEND__CACHE__FAST_TTL -> recommend.cache.fast_ttl.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

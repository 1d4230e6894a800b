// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

// Package config loads layered configuration: struct defaults, then an
// optional YAML file, then EMBERFEED_* environment variables, highest
// layer winning.
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

	"github.com/emberfeed/emberfeed/internal/batch"
	"github.com/emberfeed/emberfeed/internal/cache"
	"github.com/emberfeed/emberfeed/internal/kvstore"
	"github.com/emberfeed/emberfeed/internal/logging"
	"github.com/emberfeed/emberfeed/internal/recommend"
	"github.com/emberfeed/emberfeed/internal/retry"
	"github.com/emberfeed/emberfeed/internal/storage"
)

// DefaultConfigPaths is searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/emberfeed/config.yaml",
	"/etc/emberfeed/config.yml",
}

// ConfigPathEnvVar overrides the config file search entirely.
const ConfigPathEnvVar = "EMBERFEED_CONFIG"

// envPrefix namespaces all environment overrides, e.g.
// EMBERFEED_CACHE_DEFAULT_TTL=10m maps to cache.default_ttl.
const envPrefix = "EMBERFEED_"

// ServerConfig holds the ops HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig groups the cache facade settings.
type CacheConfig struct {
	DefaultTTL     time.Duration       `koanf:"default_ttl"`
	MonitorEnabled bool                `koanf:"monitor_enabled"`
	PruneWindow    time.Duration       `koanf:"prune_window"`
	Breaker        cache.BreakerConfig `koanf:"breaker"`
}

// QueueConfig groups the retry queue and its transport.
type QueueConfig struct {
	// Transport selects "channel" (in-process) or "nats".
	Transport string           `koanf:"transport"`
	Retry     retry.Config     `koanf:"retry"`
	NATS      retry.NATSConfig `koanf:"nats"`
}

// JobConfig schedules one named job.
type JobConfig struct {
	Expr    string `koanf:"expr"`
	Enabled bool   `koanf:"enabled"`
}

// JobsConfig drives the orchestrator.
type JobsConfig struct {
	Timezone      string    `koanf:"timezone"`
	HotScore      JobConfig `koanf:"hot_score"`
	ContentBased  JobConfig `koanf:"content_based"`
	Collaborative JobConfig `koanf:"collaborative"`
	Social        JobConfig `koanf:"social"`
}

// Config is the full application configuration tree.
type Config struct {
	Server    ServerConfig          `koanf:"server"`
	Log       logging.Config        `koanf:"log"`
	KV        kvstore.BadgerConfig  `koanf:"kv"`
	Database  storage.Config        `koanf:"database"`
	Cache     CacheConfig           `koanf:"cache"`
	Queue     QueueConfig           `koanf:"queue"`
	Batch     batch.Config          `koanf:"batch"`
	Jobs      JobsConfig            `koanf:"jobs"`
	Recommend recommend.Config      `koanf:"recommend"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8480,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: logging.Config{
			Level:     "info",
			Format:    "json",
			Timestamp: true,
		},
		KV: kvstore.BadgerConfig{
			Dir:        "/data/emberfeed/kv",
			GCInterval: 10 * time.Minute,
		},
		Database: storage.Config{
			Path:        "/data/emberfeed/emberfeed.duckdb",
			MemoryLimit: "1GB",
		},
		Cache: CacheConfig{
			DefaultTTL:     cache.DefaultTTL,
			MonitorEnabled: true,
			PruneWindow:    cache.DefaultPruneWindow,
			Breaker: cache.BreakerConfig{
				ConsecutiveFailures: 5,
				OpenTimeout:         30 * time.Second,
			},
		},
		Queue: QueueConfig{
			Transport: "channel",
			Retry: retry.Config{
				MaxAttempts:       retry.DefaultMaxAttempts,
				InitialBackoff:    time.Second,
				MaxBackoff:        time.Minute,
				BackoffMultiplier: 2,
				CloseTimeout:      30 * time.Second,
			},
			NATS: retry.NATSConfig{
				Embedded:    true,
				URL:         "nats://127.0.0.1:4222",
				StoreDir:    "/data/emberfeed/nats",
				MaxMemory:   1 << 30,
				MaxStore:    4 << 30,
				DurableName: "score-retry",
				QueueGroup:  "score-workers",
				AckWait:     time.Minute,
			},
		},
		Batch: batch.Config{
			PageSize:          batch.DefaultPageSize,
			PagePause:         batch.DefaultPagePause,
			IncrementalWindow: batch.DefaultIncrementalWindow,
		},
		Jobs: JobsConfig{
			Timezone:      "UTC",
			HotScore:      JobConfig{Expr: "0 * * * *", Enabled: true},
			ContentBased:  JobConfig{Expr: "0 2 * * *", Enabled: true},
			Collaborative: JobConfig{Expr: "0 3 * * *", Enabled: true},
			Social:        JobConfig{Expr: "0 4 * * *", Enabled: true},
		},
		Recommend: recommend.Config{
			FeedSize:     recommend.DefaultFeedSize,
			SeedLimit:    recommend.DefaultSeedLimit,
			ActiveWindow: recommend.DefaultActiveWindow,
			UserLimit:    recommend.DefaultUserLimit,
		},
	}
}

// Load builds the configuration from defaults, file and environment.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit file path; empty skips the file
// layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToPath), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envToPath maps EMBERFEED_SECTION_SOME_KEY to section.some_key. Only
// the first underscore becomes a separator; every section name is a
// single word so the rest of the variable is the key.
func envToPath(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

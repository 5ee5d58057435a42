// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

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
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cartographus/config.yaml",
	"/etc/cartographus/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		CIF: CIFConfig{
			CorpusPath:        "",
			SkipCorpus:        false,
			URLTemplate:       "https://datafeeds.networkrail.co.uk/ntrod/CifFileAuthenticate?type=CIF_ALL_FULL_DAILY&day=toc-full",
			UpdateURLTemplate: "https://datafeeds.networkrail.co.uk/ntrod/CifFileAuthenticate?type=CIF_ALL_UPDATE_DAILY&day=toc-update-%s",
		},
		Live: LiveConfig{
			URL:               "nats://127.0.0.1:4222",
			EmbeddedServer:    true,
			StoreDir:          "/data/nats/jetstream",
			StreamName:        "TRUST",
			Subject:           "trust.movement",
			DurableName:       "cartographus-live",
			QueueGroup:        "live-ingesters",
			SubscribersCount:  1,
			MaxReconnects:     -1,
			ReconnectWait:     2 * time.Second,
			MaxDeliver:        5,
			MaxAckPending:     256,
			AckWaitTimeout:    30 * time.Second,
			CloseTimeout:      10 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			MaxRetries:        32,
		},
		Refresh: RefreshConfig{
			MaxGapDays:       7,
			RequestTimeout:   2 * time.Minute,
			RateLimitPerSec:  1,
			CircuitThreshold: 5,
			CircuitTimeout:   60 * time.Second,
			PollInterval:     time.Hour,
		},
		Flatten: FlattenConfig{
			HorizonDays:  84,
			WorkerCount:  4,
			BatchSize:    500,
			PollInterval: time.Minute,
			QueueDepth:   64,
		},
		Database: DatabaseConfig{
			Path:                   "/data/cartographus.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// This function is the preferred way to load configuration and provides:
//   - Type-safe configuration unmarshaling
//   - Clear precedence: ENV > File > Defaults
//   - Support for nested configuration via koanf struct tags
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// CIF_USERNAME -> cif.username, LIVE_DURABLE_NAME -> live.durable_name, etc.
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
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

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - CIF_USERNAME -> cif.username
//   - LIVE_DURABLE_NAME -> live.durable_name
//   - DUCKDB_PATH -> database.path
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"cif_username":            "cif.username",
		"cif_password":            "cif.password",
		"cif_corpus_path":         "cif.corpus_path",
		"cif_skip_corpus":         "cif.skip_corpus",
		"cif_url_template":        "cif.url_template",
		"cif_update_url_template": "cif.update_url_template",

		"live_url":                "live.url",
		"live_embedded_server":    "live.embedded_server",
		"live_store_dir":          "live.store_dir",
		"live_stream_name":        "live.stream_name",
		"live_subject":            "live.subject",
		"live_durable_name":       "live.durable_name",
		"live_queue_group":        "live.queue_group",
		"live_subscribers_count":  "live.subscribers_count",
		"live_max_reconnects":     "live.max_reconnects",
		"live_reconnect_wait":     "live.reconnect_wait",
		"live_max_deliver":        "live.max_deliver",
		"live_max_ack_pending":    "live.max_ack_pending",
		"live_ack_wait_timeout":   "live.ack_wait_timeout",
		"live_close_timeout":      "live.close_timeout",
		"live_heartbeat_interval": "live.heartbeat_interval",
		"live_max_retries":        "live.max_retries",

		"refresh_max_gap_days":       "refresh.max_gap_days",
		"refresh_request_timeout":    "refresh.request_timeout",
		"refresh_rate_limit_per_sec": "refresh.rate_limit_per_sec",
		"refresh_circuit_threshold":  "refresh.circuit_threshold",
		"refresh_circuit_timeout":    "refresh.circuit_timeout",
		"refresh_poll_interval":      "refresh.poll_interval",

		"flatten_horizon_days":  "flatten.horizon_days",
		"flatten_worker_count":  "flatten.worker_count",
		"flatten_batch_size":    "flatten.batch_size",
		"flatten_poll_interval": "flatten.poll_interval",
		"flatten_queue_depth":   "flatten.queue_depth",

		"duckdb_path":                      "database.path",
		"duckdb_max_memory":                "database.max_memory",
		"duckdb_threads":                   "database.threads",
		"duckdb_preserve_insertion_order":  "database.preserve_insertion_order",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables do not
	// pollute the configuration tree.
	return ""
}

// GetKoanfInstance returns a new Koanf instance for advanced usage, such as
// tests that need to assemble a configuration from in-memory sources.
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}

// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration loaded from environment variables,
// an optional YAML config file, and built-in defaults. It is immutable after
// Load() and safe for concurrent read access.
//
// Configuration loading order (Koanf v2):
//  1. Defaults: sensible built-in defaults for every optional setting
//  2. Config file: optional YAML config file for persistent settings
//  3. Environment variables: override any setting, highest priority
type Config struct {
	CIF      CIFConfig      `koanf:"cif"`
	Live     LiveConfig     `koanf:"live"`
	Refresh  RefreshConfig  `koanf:"refresh"`
	Flatten  FlattenConfig  `koanf:"flatten"`
	Database DatabaseConfig `koanf:"database"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// CIFConfig controls where the bulk interchange schedule feed is fetched
// from and how the location bootstrap is seeded.
type CIFConfig struct {
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	CorpusPath  string `koanf:"corpus_path"`
	SkipCorpus  bool   `koanf:"skip_corpus"`
	URLTemplate string `koanf:"url_template"`
	// UpdateURLTemplate is a fmt.Sprintf template taking one argument, the
	// lowercase three-letter weekday abbreviation (mon..sun) of the day
	// being fetched, per renew_schedules.py's per-weekday daily update URL.
	UpdateURLTemplate string `koanf:"update_url_template"`
}

// LiveConfig controls the live-movement broker subscription. NATS JetStream
// stands in for the upstream STOMP broker: both provide a durable,
// per-message-acknowledged subscription keyed by a stable client identifier.
type LiveConfig struct {
	URL               string        `koanf:"url"`
	EmbeddedServer    bool          `koanf:"embedded_server"`
	StoreDir          string        `koanf:"store_dir"`
	StreamName        string        `koanf:"stream_name"`
	Subject           string        `koanf:"subject"`
	DurableName       string        `koanf:"durable_name"`
	QueueGroup        string        `koanf:"queue_group"`
	SubscribersCount  int           `koanf:"subscribers_count"`
	MaxReconnects     int           `koanf:"max_reconnects"`
	ReconnectWait     time.Duration `koanf:"reconnect_wait"`
	MaxDeliver        int           `koanf:"max_deliver"`
	MaxAckPending     int           `koanf:"max_ack_pending"`
	AckWaitTimeout    time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout      time.Duration `koanf:"close_timeout"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	MaxRetries        int           `koanf:"max_retries"`
}

// RefreshConfig controls the schedule refresher's daily-update catch-up run.
type RefreshConfig struct {
	MaxGapDays       int           `koanf:"max_gap_days"`
	RequestTimeout   time.Duration `koanf:"request_timeout"`
	RateLimitPerSec  float64       `koanf:"rate_limit_per_sec"`
	CircuitThreshold uint32        `koanf:"circuit_threshold"`
	CircuitTimeout   time.Duration `koanf:"circuit_timeout"`
	// PollInterval is how often the refresher checks the extract horizon
	// for a gap to catch up on. renew_schedules.py ran once as a daily
	// cron job; running this check on an interval inside a long-lived
	// process gets the same effect without an external scheduler.
	PollInterval time.Duration `koanf:"poll_interval"`
}

// FlattenConfig controls the flattening engine's worker pool and horizon.
type FlattenConfig struct {
	HorizonDays  int           `koanf:"horizon_days"`
	WorkerCount  int           `koanf:"worker_count"`
	BatchSize    int           `koanf:"batch_size"`
	PollInterval time.Duration `koanf:"poll_interval"`
	QueueDepth   int           `koanf:"queue_depth"`
}

// DatabaseConfig controls the DuckDB-backed store.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// LoggingConfig controls the zerolog-based structured logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, an optional YAML file, and the
// environment, validating the result before returning it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// Validate checks that required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.CIF.URLTemplate == "" {
		return fmt.Errorf("cif.url_template is required")
	}
	if c.CIF.UpdateURLTemplate == "" {
		return fmt.Errorf("cif.update_url_template is required")
	}
	if c.Live.DurableName == "" {
		return fmt.Errorf("live.durable_name is required")
	}
	if c.Flatten.WorkerCount <= 0 {
		return fmt.Errorf("flatten.worker_count must be positive")
	}
	if c.Flatten.HorizonDays <= 0 {
		return fmt.Errorf("flatten.horizon_days must be positive")
	}
	if c.Refresh.MaxGapDays <= 0 {
		return fmt.Errorf("refresh.max_gap_days must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

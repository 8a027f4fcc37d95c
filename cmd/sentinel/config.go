package main

import (
	"github.com/zuudevs/grid-watcher/pkg/ids"
	"github.com/zuudevs/grid-watcher/pkg/logger"
)

// NATSConfig enables the JetStream telemetry sink. Empty Subject disables it.
type NATSConfig struct {
	URL     string `json:"url"`
	Subject string `json:"subject"`
	Stream  string `json:"stream"`
}

// PostgresConfig enables the audit-log telemetry sink. Empty DSN disables it.
type PostgresConfig struct {
	DSN   string `json:"dsn"`
	Table string `json:"table"`
}

// OTelConfig enables the metrics bridge. MeterName empty disables it.
type OTelConfig struct {
	MeterName     string `json:"meter_name"`
	MetricsPrefix string `json:"metrics_prefix"`
}

// GeneratorConfig drives the synthetic packet generator that stands in for
// a live packet capture feed.
type GeneratorConfig struct {
	Enabled        bool    `json:"enabled"`
	SourceCount    int     `json:"source_count"`
	PacketsPerSec  float64 `json:"packets_per_second"`
	AttackFraction float64 `json:"attack_fraction"`
}

// Config is the top-level sentinel binary configuration document.
type Config struct {
	Logging   *logger.Config   `json:"logging"`
	Engine    ids.EngineConfig `json:"engine"`
	LogPath   string           `json:"log_path"`
	NATS      *NATSConfig      `json:"nats"`
	Postgres  *PostgresConfig  `json:"postgres"`
	OTel      *OTelConfig      `json:"otel"`
	Generator GeneratorConfig  `json:"generator"`
}

// Validate delegates to EngineConfig.Validate and checks the bootstrap-only
// fields that EngineConfig itself doesn't know about.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}

	if c.LogPath == "" {
		c.LogPath = "sentinel.log"
	}

	return nil
}

// DefaultConfig returns the configuration used when no config file is
// supplied, suitable for running the demo generator against stdout logging.
func DefaultConfig() Config {
	return Config{
		Logging: logger.DefaultConfig(),
		Engine:  ids.DefaultEngineConfig(),
		LogPath: "sentinel.log",
		Generator: GeneratorConfig{
			Enabled:        true,
			SourceCount:    20,
			PacketsPerSec:  200,
			AttackFraction: 0.05,
		},
	}
}

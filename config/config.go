// Package config holds the application configuration and its YAML store.
// The store owns the canonical configuration; running components always work
// on deep copies handed out through Clone so concurrent edits cannot disturb
// in-flight operations.
package config

import (
	"fmt"
	"time"

	"github.com/Martenstenden/Data-Logger-sub001/types"
)

// Config is the complete application configuration.
type Config struct {
	Log         LogConfig                 `yaml:"log"`
	Metrics     MetricsConfig             `yaml:"metrics"`
	NATS        NATSConfig                `yaml:"nats"`
	Connections []*types.ConnectionConfig `yaml:"connections"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// NATSConfig controls the event sink connection. When disabled, events only
// go to the logging sink.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Name    string `yaml:"name"`
}

// Default returns the configuration used when no file exists or the file
// cannot be parsed. It runs with no connections; the saved file is the only
// source of connection definitions.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9105",
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
			Name:    "datalogger",
		},
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Connections = make([]*types.ConnectionConfig, len(c.Connections))
	for i, conn := range c.Connections {
		clone.Connections[i] = conn.Clone()
	}
	return &clone
}

// Validate checks the configuration for contract violations. Connection
// names must be unique; each connection validates its own tag set.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format %q is not text or json", c.Log.Format)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics enabled but no listen address configured")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats enabled but no url configured")
	}

	seen := make(map[string]struct{}, len(c.Connections))
	for _, conn := range c.Connections {
		if conn == nil {
			return fmt.Errorf("nil connection entry")
		}
		if err := conn.Validate(); err != nil {
			return err
		}
		if _, dup := seen[conn.Name]; dup {
			return fmt.Errorf("duplicate connection name %q", conn.Name)
		}
		seen[conn.Name] = struct{}{}
	}
	return nil
}

// EnabledConnections returns deep copies of the connections marked enabled.
func (c *Config) EnabledConnections() []*types.ConnectionConfig {
	var out []*types.ConnectionConfig
	for _, conn := range c.Connections {
		if conn.Enabled {
			out = append(out, conn.Clone())
		}
	}
	return out
}

// ConnectionByName returns a deep copy of the named connection.
func (c *Config) ConnectionByName(name string) (*types.ConnectionConfig, bool) {
	for _, conn := range c.Connections {
		if conn.Name == name {
			return conn.Clone(), true
		}
	}
	return nil, false
}

// normalize fills zero values that YAML omission leaves behind with the
// defaults, so a partial file behaves like a full one.
func (c *Config) normalize() {
	def := Default()
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = def.Metrics.Address
	}
	if c.NATS.URL == "" {
		c.NATS.URL = def.NATS.URL
	}
	if c.NATS.Name == "" {
		c.NATS.Name = def.NATS.Name
	}
	for _, conn := range c.Connections {
		if conn.ScanInterval <= 0 {
			conn.ScanInterval = time.Second
		}
	}
}

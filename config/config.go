// Package config implements the optional TOML configuration file for the
// session provisioning service. Everything in the file can also be supplied
// as command-line flags; the file exists for deployments that template their
// configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/wapair/session-backend/interfaces"
)

const (
	defaultListenAddr  = "127.0.0.1:8080"
	defaultMetricsAddr = "127.0.0.1:8090"
)

// Server holds the HTTP listener configuration.
type Server struct {
	// ListenAddr is the API listen address.
	ListenAddr string

	// MetricsAddr is the Prometheus metrics listen address; empty disables
	// the metrics listener.
	MetricsAddr string

	// EnablePprof mounts the pprof debug endpoints.
	EnablePprof bool
}

// Store holds the durable-store configuration.
type Store struct {
	// URI selects and configures the backend: file://, bolt://, vault://,
	// s3://. Required.
	URI string
}

// Gateway holds the protocol gateway configuration.
type Gateway struct {
	// URL is the gateway's websocket endpoint. Required.
	URL string
}

// Logging holds the logging configuration.
type Logging struct {
	// JSON selects JSON log output.
	JSON bool

	// Debug enables debug-level messages.
	Debug bool
}

// Config is the top-level configuration.
type Config struct {
	Server  Server
	Store   Store
	Gateway Gateway
	Logging Logging
}

// FixupAndValidate applies defaults and validates the configuration.
func (c *Config) FixupAndValidate() error {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = defaultMetricsAddr
	}

	if c.Store.URI == "" {
		return errors.New("config: Store.URI is required")
	}
	if _, err := interfaces.NewStoreLocation(c.Store.URI); err != nil {
		return fmt.Errorf("config: Store.URI: %w", err)
	}

	if c.Gateway.URL == "" {
		return errors.New("config: Gateway.URL is required")
	}

	return nil
}

// Load parses and validates a configuration document.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads and validates the configuration at path f.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

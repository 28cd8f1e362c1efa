// Package config loads and validates the server configuration.
//
// Configuration is a small YAML file validated against an embedded CUE
// schema before it is accepted. Every field is optional; missing fields
// fall back to defaults, so running without a file at all is legal.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Defaults.
const (
	DefaultListenAddr  = ":50000"
	DefaultIdleTimeout = 30 * time.Second
)

// Config is the resolved server configuration.
type Config struct {
	// ListenAddr is the TCP address the protocol listener binds.
	ListenAddr string

	// IdleTimeout is how long a session waits for client input.
	IdleTimeout time.Duration

	// MetricsAddr, when non-empty, enables the Prometheus endpoint.
	MetricsAddr string

	// AuditDB, when non-empty, is the SQLite journal path.
	AuditDB string
}

// fileConfig is the on-disk YAML shape. Durations travel as strings so
// the file stays hand-editable ("45s", "2m").
type fileConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	IdleTimeout string `yaml:"idle_timeout"`
	MetricsAddr string `yaml:"metrics_addr"`
	AuditDB     string `yaml:"audit_db"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr:  DefaultListenAddr,
		IdleTimeout: DefaultIdleTimeout,
	}
}

// Load reads, schema-validates, and resolves a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse resolves config bytes. Unknown YAML fields are rejected (typo
// protection), then the document is checked against the CUE schema.
func Parse(data []byte) (Config, error) {
	if err := validateSchema(data); err != nil {
		return Config{}, err
	}

	var fc fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg := Default()
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.IdleTimeout != "" {
		timeout, err := time.ParseDuration(fc.IdleTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("invalid idle_timeout: %w", err)
		}
		cfg.IdleTimeout = timeout
	}
	cfg.MetricsAddr = fc.MetricsAddr
	cfg.AuditDB = fc.AuditDB
	return cfg, nil
}

// validateSchema unifies the YAML document with the embedded schema and
// reports constraint violations with CUE's error details.
func validateSchema(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if raw == nil {
		// An empty file is a valid all-defaults config.
		return nil
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("internal schema error: %w", err)
	}

	unified := schema.Unify(ctx.Encode(raw))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config does not match schema:\n%s", cueerrors.Details(err, nil))
	}
	return nil
}

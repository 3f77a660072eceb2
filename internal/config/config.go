package config

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the optional server configuration file values. Flags
// take precedence over file values, file values over defaults.
type Config struct {
	DBPath             string
	RedisURL           string
	ListenAddress      string
	UndoDepth          int
	OperationRetention time.Duration
	Debug              bool
}

// Loader loads server configuration from YAML files.
type Loader struct {
	fs fs.FS
}

// NewLoader creates a new YAML config loader.
func NewLoader(filesystem fs.FS) *Loader {
	return &Loader{fs: filesystem}
}

// Load reads a YAML configuration file and returns a validated config.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := fs.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	cfg, err := raw.toConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// fileConfig is the YAML structure of the configuration file.
type fileConfig struct {
	DBPath             string `yaml:"db_path"`
	RedisURL           string `yaml:"redis_url"`
	ListenAddress      string `yaml:"listen_address"`
	UndoDepth          int    `yaml:"undo_depth"`
	OperationRetention string `yaml:"operation_retention"`
	Debug              bool   `yaml:"debug"`
}

func (f fileConfig) toConfig() (*Config, error) {
	if f.UndoDepth < 0 {
		return nil, fmt.Errorf("undo_depth cannot be negative")
	}

	var retention time.Duration
	if f.OperationRetention != "" {
		d, err := time.ParseDuration(f.OperationRetention)
		if err != nil {
			return nil, fmt.Errorf("operation_retention is not a valid duration: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("operation_retention must be positive")
		}
		retention = d
	}

	return &Config{
		DBPath:             f.DBPath,
		RedisURL:           f.RedisURL,
		ListenAddress:      f.ListenAddress,
		UndoDepth:          f.UndoDepth,
		OperationRetention: retention,
		Debug:              f.Debug,
	}, nil
}

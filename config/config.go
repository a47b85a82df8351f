// Package config loads the simulator configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/govm-net/starksim/api"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/state"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the top-level configuration
type Config struct {
	Backend     BackendConfig      `yaml:"backend"`
	Contract    api.ContractConfig `yaml:"contract"`
	BaseDir     string             `yaml:"base_dir"`
	GenesisTime int64              `yaml:"genesis_time"` // unix seconds of block 0
	Caller      string             `yaml:"caller"`       // default transaction sender
	Log         LogConfig          `yaml:"log"`
	Gateway     GatewayConfig      `yaml:"gateway"`
}

// BackendConfig selects the state backend.
type BackendConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"` // database file or directory, empty for in-memory
}

// LogConfig configures the zap logger. File output is rotated.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or console
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend:  BackendConfig{Type: string(state.MemoryBackend)},
		Contract: api.DefaultContractConfig(),
		Caller:   "0x1",
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Gateway: GatewayConfig{
			Addr:        "127.0.0.1:5050",
			CORSOrigins: []string{"*"},
		},
	}
}

// Load reads a YAML file over the defaults. Unknown fields are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	switch state.BackendType(c.Backend.Type) {
	case state.MemoryBackend, state.SQLiteBackend, state.BadgerBackend:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend.Type)
	}
	if c.Contract.MaxCallDepth == 0 {
		return fmt.Errorf("%w: contract.max_call_depth must be positive", ErrInvalidConfig)
	}
	if _, err := c.CallerFelt(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.format must be json or console, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// CallerFelt parses the configured caller address.
func (c Config) CallerFelt() (core.Felt, error) {
	if c.Caller == "" {
		return core.Zero, nil
	}
	f, err := core.ParseFelt(c.Caller)
	if err != nil {
		return core.Zero, fmt.Errorf("%w: caller: %w", ErrInvalidConfig, err)
	}
	return f, nil
}

// BackendParams returns the parameters passed to state.Open.
func (c Config) BackendParams() map[string]any {
	if c.Backend.Path == "" {
		return nil
	}
	return map[string]any{state.ParamPath: c.Backend.Path}
}

// NewLogger builds a logger writing to stderr, or to a rotated file when
// File is set.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if strings.EqualFold(c.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var out zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if c.File != "" {
		out = zapcore.AddSync(&lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
		})
	}
	return zap.New(zapcore.NewCore(enc, out, level)), nil
}

// Package config loads the daemon configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/tickloop/internal/core/loop"
	"github.com/zeusync/tickloop/internal/core/observability/log"
	"github.com/zeusync/tickloop/internal/server"
)

// Environment overrides, applied after the file is decoded.
const (
	EnvLogLevel         = "TICKLOOP_LOG_LEVEL"
	EnvLogEncoding      = "TICKLOOP_LOG_ENCODING"
	EnvTelemetryAddr    = "TICKLOOP_TELEMETRY_ADDR"
	EnvTelemetryEnabled = "TICKLOOP_TELEMETRY_ENABLED"
)

type LogConfig struct {
	Level    string `yaml:"level" json:"level"`
	Encoding string `yaml:"encoding" json:"encoding"`
}

// Logger builds the configured zap-backed logger.
func (c LogConfig) Logger() *log.Logger {
	return log.NewWithEncoding(log.ParseLevel(c.Level), c.Encoding)
}

func (c LogConfig) validate() error {
	var errs []error
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Level))
	}
	switch c.Encoding {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.encoding %q is not json or console", c.Encoding))
	}
	return errors.Join(errs...)
}

// Config holds all configuration for tickloopd.
type Config struct {
	Log       LogConfig     `yaml:"log" json:"log"`
	Loops     []loop.Config `yaml:"loops" json:"loops"`
	Telemetry server.Config `yaml:"telemetry" json:"telemetry"`
}

// Default is a single 60 Hz loop named main with telemetry on localhost.
func Default() Config {
	return Config{
		Log:       LogConfig{Level: "info", Encoding: "json"},
		Loops:     []loop.Config{loop.DefaultConfig()},
		Telemetry: server.DefaultServerConfig(),
	}
}

// Load decodes YAML from r over Default, applies environment overrides and
// validates the result. An empty document yields the defaults.
func Load(r io.Reader) (Config, error) {
	return load(r, os.LookupEnv)
}

// LoadFile is Load for the file at path.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Load(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func load(r io.Reader, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvLogEncoding); ok && v != "" {
		c.Log.Encoding = v
	}
	if v, ok := lookup(EnvTelemetryAddr); ok && v != "" {
		c.Telemetry.ListenAddr = v
	}
	if v, ok := lookup(EnvTelemetryEnabled); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTelemetryEnabled, err)
		}
		c.Telemetry.Enabled = enabled
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.Log.validate(); err != nil {
		errs = append(errs, err)
	}

	if len(c.Loops) == 0 {
		errs = append(errs, ErrNoLoops)
	}
	seen := make(map[string]struct{}, len(c.Loops))
	for i, lc := range c.Loops {
		if err := lc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("loops[%d]: %w", i, err))
		}
		if _, dup := seen[lc.Name]; dup {
			errs = append(errs, fmt.Errorf("loops[%d]: %w: %q", i, ErrDuplicateLoop, lc.Name))
		}
		seen[lc.Name] = struct{}{}
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

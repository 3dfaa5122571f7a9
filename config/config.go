// Package config handles wvm.toml configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/colorfulnotion/regwin/log"
	"github.com/colorfulnotion/regwin/wvm"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "wvm.toml"

// Config represents a wvm.toml file.
type Config struct {
	Machine   MachineConfig   `toml:"machine"`
	Log       LogConfig       `toml:"log"`
	Trace     TraceConfig     `toml:"trace"`
	Storage   StorageConfig   `toml:"storage"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// MachineConfig bounds each run.
type MachineConfig struct {
	Budget uint32 `toml:"budget"`
}

// LogConfig selects the level and the modules whose trace/debug output is shown.
type LogConfig struct {
	Level   string   `toml:"level"`
	Modules []string `toml:"modules"`
}

// TraceConfig configures per-step tracing of runs.
type TraceConfig struct {
	Output   string `toml:"output"` // JSONL path, "-" for stdout, empty disables
	CallTree bool   `toml:"calltree"`
}

// StorageConfig locates the image store. An empty path keeps images in memory.
type StorageConfig struct {
	Path string `toml:"path"`
}

// TelemetryConfig configures run event export. Empty endpoints disable it.
type TelemetryConfig struct {
	Endpoint     string `toml:"endpoint"`      // host:port of a TCP event sink
	OTLPEndpoint string `toml:"otlp-endpoint"` // host:port of an OTLP/HTTP collector
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Machine: MachineConfig{Budget: wvm.DefaultBudget},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path tries DefaultFile and
// falls back to the defaults when it does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that toml decoding cannot.
func (c *Config) Validate() error {
	if c.Machine.Budget == 0 {
		return errors.New("machine.budget must be positive")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Package config handles isola.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/isola/vm"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "isola.toml"

// Config represents an isola.toml file.
type Config struct {
	Worker   Worker   `toml:"worker"`
	Transfer Transfer `toml:"transfer"`
	Log      Log      `toml:"log"`

	// Path is the file the configuration was read from, empty for
	// defaults (set at load time).
	Path string `toml:"-"`
}

// Worker configures workers started from this configuration.
type Worker struct {
	QueueSize int    `toml:"queue-size"`
	Drain     string `toml:"drain"`
}

// Transfer configures the default transfer mode.
type Transfer struct {
	Mode string `toml:"mode"`
}

// Log configures commonlog verbosity.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Worker:   Worker{QueueSize: vm.DefaultQueueSize, Drain: vm.DrainQueued.String()},
		Transfer: Transfer{Mode: vm.TransferChecked.String()},
		Log:      Log{Verbosity: 1},
	}
}

// Load parses an isola.toml file. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find an isola.toml file and loads
// it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks that enumerated settings parse.
func (c *Config) Validate() error {
	if c.Worker.QueueSize < 0 {
		return fmt.Errorf("worker.queue-size must not be negative, got %d", c.Worker.QueueSize)
	}
	if _, err := vm.ParseDrainPolicy(c.Worker.Drain); err != nil {
		return fmt.Errorf("worker.drain: %w", err)
	}
	if _, err := vm.ParseTransferMode(c.Transfer.Mode); err != nil {
		return fmt.Errorf("transfer.mode: %w", err)
	}
	return nil
}

// TransferMode returns the configured default transfer mode.
func (c *Config) TransferMode() vm.TransferMode {
	m, err := vm.ParseTransferMode(c.Transfer.Mode)
	if err != nil {
		return vm.TransferChecked
	}
	return m
}

// WorkerOptions converts the worker section to StartWorker options.
func (c *Config) WorkerOptions() []vm.WorkerOption {
	opts := []vm.WorkerOption{}
	if c.Worker.QueueSize > 0 {
		opts = append(opts, vm.WithQueueSize(c.Worker.QueueSize))
	}
	if p, err := vm.ParseDrainPolicy(c.Worker.Drain); err == nil {
		opts = append(opts, vm.WithDrainPolicy(p))
	}
	return opts
}

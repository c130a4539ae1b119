package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeycumines/logiface"
	"gopkg.in/yaml.v3"
)

// Config is the duxrun configuration file. Flags override it.
type Config struct {
	// BaseDir is the directory top-level requires resolve against. It
	// defaults to the directory of the main script.
	BaseDir string `yaml:"baseDir"`
	// LogLevel is a syslog keyword, e.g. "warning" or "debug".
	LogLevel string `yaml:"logLevel"`
	// MaxWorkers bounds concurrent background work, zero meaning unbounded.
	MaxWorkers int `yaml:"maxWorkers"`
	// ContinueOnError keeps the loop running after a callback throws. The
	// process still exits non-zero.
	ContinueOnError bool `yaml:"continueOnError"`
}

// LoadConfig reads and parses a configuration file.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the values that cannot be corrected silently.
func (c Config) Validate() error {
	if c.MaxWorkers < 0 {
		return fmt.Errorf("maxWorkers must not be negative, got %d", c.MaxWorkers)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level keyword to a [logiface.Level]. An empty string
// means warning.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return logiface.LevelWarning, nil
	case "disabled", "off", "none":
		return logiface.LevelDisabled, nil
	case "emerg", "emergency":
		return logiface.LevelEmergency, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "warning", "warn":
		return logiface.LevelWarning, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "info", "informational":
		return logiface.LevelInformational, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", s)
}

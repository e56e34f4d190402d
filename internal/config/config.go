// Package config defines the configuration of the amfdump tool.
// It uses strict YAML decoding and explicit defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// Input modes
const (
	ModeLSO      = "lso"
	ModeAMF0     = "amf0"
	ModeAMF3     = "amf3"
	ModeRemoting = "remoting"
)

// Config holds the complete tool configuration.
// All fields have explicit defaults.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Output OutputConfig `yaml:"output"`
	Decode DecodeConfig `yaml:"decode"`
}

// LogConfig defines diagnostic logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error
}

// OutputConfig defines how decoded values are printed.
type OutputConfig struct {
	Format string `yaml:"format"` // yaml, json or cbor
}

// DecodeConfig defines how input is decoded.
type DecodeConfig struct {
	Mode string `yaml:"mode"`           // lso, amf0, amf3 or remoting
	Flex bool   `yaml:"flex,omitempty"` // Register the Flex externalizable codecs
}

// Default returns the configuration used without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads configuration from a YAML file.
// Returns an error if the file cannot be read or decoded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML, rejecting unknown fields.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields

	// An empty document leaves every field at its default
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Apply defaults
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults applies explicit default values to unset fields.
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
	if c.Output.Format == "" {
		c.Output.Format = FormatYAML
	}
	if c.Decode.Mode == "" {
		c.Decode.Mode = ModeLSO
	}
}

// Validate checks that every enumerated field holds a known value.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if !slices.Contains([]string{FormatYAML, FormatJSON, FormatCBOR}, c.Output.Format) {
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	if !slices.Contains([]string{ModeLSO, ModeAMF0, ModeAMF3, ModeRemoting}, c.Decode.Mode) {
		return fmt.Errorf("unknown decode mode %q", c.Decode.Mode)
	}
	return nil
}

// SlogLevel converts the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

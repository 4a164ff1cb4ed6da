// Package config loads and validates blockbridge configuration from TOML,
// with optional live reload of the config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Validation errors.
var (
	ErrNoServerCommand = errors.New("server.command is required")
	ErrNoLanguageID    = errors.New("embedded_language is required")
	ErrBadTimeout      = errors.New("request_timeout must be positive")
)

// Config is the full blockbridge configuration.
type Config struct {
	// IntroducerKey is the YAML key whose block scalar holds embedded
	// code, e.g. "source" for `source: |`.
	IntroducerKey string `toml:"introducer_key"`

	// HostLanguage is the language id of host documents as the editor
	// reports it.
	HostLanguage string `toml:"host_language"`

	// EmbeddedLanguage is the language id synthetic documents are opened
	// with on the embedded server.
	EmbeddedLanguage string `toml:"embedded_language"`

	// RequestTimeout bounds each forwarded request round trip.
	RequestTimeout time.Duration `toml:"request_timeout"`

	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
}

// ServerConfig describes how to launch the embedded-language server.
type ServerConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Env     []string `toml:"env"`
	WorkDir string   `toml:"workdir"`
}

// LogConfig controls log output. Level is one of debug, info, warn, error.
// An empty File logs to stderr; stdout is never an option because it
// carries protocol traffic.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Default returns the configuration used when no file is present. The
// server command still has to come from somewhere, so Default alone does
// not validate.
func Default() Config {
	return Config{
		IntroducerKey:    "source",
		HostLanguage:     "yaml",
		EmbeddedLanguage: "sql",
		RequestTimeout:   10 * time.Second,
		Log:              LogConfig{Level: "info"},
	}
}

// Load reads the TOML file at path over the defaults. A missing file is not
// an error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields the bridge cannot run without.
func (c Config) Validate() error {
	if c.Server.Command == "" {
		return ErrNoServerCommand
	}
	if c.EmbeddedLanguage == "" {
		return ErrNoLanguageID
	}
	if c.RequestTimeout <= 0 {
		return ErrBadTimeout
	}
	if c.IntroducerKey == "" {
		return errors.New("introducer_key must not be empty")
	}
	return nil
}

// DetectionEquals reports whether two configs detect the same regions.
// A reload that keeps detection identical does not need a bridge reset.
func (c Config) DetectionEquals(other Config) bool {
	return c.IntroducerKey == other.IntroducerKey &&
		c.HostLanguage == other.HostLanguage &&
		c.EmbeddedLanguage == other.EmbeddedLanguage
}

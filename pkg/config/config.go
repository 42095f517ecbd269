// Package config loads hotmesscoach settings from defaults, an optional TOML
// file and the environment, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/stevejgoodman/hotmesscoach/pkg/relay"
)

const (
	// DefaultBackendURL is used when API_BASE_URL is unset.
	DefaultBackendURL = "http://localhost:8000"
	// DefaultListenAddr is where the relay server listens.
	DefaultListenAddr = ":3000"
	// DefaultRelayURL is where the chat client looks for the relay.
	DefaultRelayURL = "http://localhost:3000"

	defaultBodyLimit = 32 * 1024 * 1024
	defaultTimeout   = 5 * time.Minute
)

// Environment variables read by Load.
const (
	EnvBackendURL = "API_BASE_URL"
	EnvListenAddr = "COACH_LISTEN"
	EnvModel      = "COACH_MODEL"
	EnvRelayURL   = "COACH_RELAY_URL"
	EnvDebug      = "COACH_DEBUG"
)

// Config is the full configuration for the relay server and chat client.
type Config struct {
	Server ServerConfig `toml:"server"`
	Chat   ChatConfig   `toml:"chat"`
	Debug  bool         `toml:"debug"`
}

// ServerConfig configures the relay endpoints and the upstream adapter.
type ServerConfig struct {
	ListenAddr   string   `toml:"listen"`
	BackendURL   string   `toml:"backend_url"`
	DefaultModel string   `toml:"default_model"`
	Timeout      Duration `toml:"timeout"`
	BodyLimit    int      `toml:"body_limit"`
}

// ChatConfig configures the terminal chat client.
type ChatConfig struct {
	RelayURL string   `toml:"relay_url"`
	Model    string   `toml:"model"`
	Timeout  Duration `toml:"timeout"`
	Greeting bool     `toml:"greeting"`
	LogFile  string   `toml:"log_file"`
}

// Duration is a time.Duration that decodes from TOML strings such as "90s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   DefaultListenAddr,
			BackendURL:   DefaultBackendURL,
			DefaultModel: relay.DefaultModel,
			Timeout:      Duration{defaultTimeout},
			BodyLimit:    defaultBodyLimit,
		},
		Chat: ChatConfig{
			RelayURL: DefaultRelayURL,
			Model:    relay.DefaultModel,
			Timeout:  Duration{defaultTimeout},
			Greeting: true,
		},
	}
}

// Load builds the configuration. An empty path skips the file; a path that
// does not exist is an error only when it was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBackendURL); ok && v != "" {
		c.Server.BackendURL = v
	}
	if v, ok := lookup(EnvListenAddr); ok && v != "" {
		c.Server.ListenAddr = v
	}
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Server.DefaultModel = v
		c.Chat.Model = v
	}
	if v, ok := lookup(EnvRelayURL); ok && v != "" {
		c.Chat.RelayURL = v
	}
	if v, ok := lookup(EnvDebug); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvDebug, v, err)
		}
		c.Debug = debug
	}
	return nil
}

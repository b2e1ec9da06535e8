package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/unicode/norm"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.Session != "" {
		cfg.Store.Session = env.Session
	}

	if env.BaseURL != "" {
		cfg.Transport.BaseURL = env.BaseURL
	}

	if cli.Session != nil {
		cfg.Store.Session = *cli.Session
	}

	if cli.BaseURL != nil {
		cfg.Transport.BaseURL = *cli.BaseURL
	}

	if cli.Backend != nil {
		cfg.Store.Backend = *cli.Backend
	}

	// Session names become key prefixes; composed and decomposed spellings
	// of the same name must address the same credentials.
	cfg.Store.Session = norm.NFC.String(cfg.Store.Session)

	// Overrides can introduce invalid values the file-level check never saw.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath(cfg.Store.Backend)
	}

	return &Resolved{
		Config:      *cfg,
		ConfigPath:  cfgPath,
		Timeout:     mustDuration(cfg.Transport.Timeout),
		BaseBackoff: mustDuration(cfg.Transport.BaseBackoff),
		MaxBackoff:  mustDuration(cfg.Transport.MaxBackoff),
	}, nil
}

// mustDuration parses a duration that Validate has already accepted.
func mustDuration(s string) time.Duration {
	d, err := parseDuration(s)
	if err != nil {
		return 0
	}

	return d
}

// parseDuration accepts Go duration strings plus the bare "0".
func parseDuration(s string) (time.Duration, error) {
	if s == "0" {
		return 0, nil
	}

	return time.ParseDuration(s)
}

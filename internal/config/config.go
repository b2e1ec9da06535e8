// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for raffle-client. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags).
package config

import "time"

// Credential store backends.
const (
	BackendMemory  = "memory"
	BackendFile    = "file"
	BackendSQLite  = "sqlite"
	BackendKeyring = "keyring"
	BackendRedis   = "redis"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Transport TransportConfig `toml:"transport"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
	Logging   LoggingConfig   `toml:"logging"`
}

// TransportConfig controls the API client: where it talks to, how long it
// waits, and how it retries.
type TransportConfig struct {
	BaseURL       string   `toml:"base_url"`
	Timeout       string   `toml:"timeout"`
	MaxRetries    int      `toml:"max_retries"`
	BaseBackoff   string   `toml:"base_backoff"`
	MaxBackoff    string   `toml:"max_backoff"`
	Jitter        float64  `toml:"jitter"`
	UserAgent     string   `toml:"user_agent"`
	QuietNotFound []string `toml:"quiet_not_found"`
	RefreshPath   string   `toml:"refresh_path"`
	LoginPath     string   `toml:"login_path"`
}

// StoreConfig selects where the credential pair is persisted. Path applies
// to the file and sqlite backends; empty means the platform data directory.
type StoreConfig struct {
	Backend        string `toml:"backend"`
	Path           string `toml:"path"`
	Session        string `toml:"session"`
	RedisAddr      string `toml:"redis_addr"`
	RedisDB        int    `toml:"redis_db"`
	KeyringService string `toml:"keyring_service"`
	Watch          bool   `toml:"watch"`
}

// NotifyConfig controls where user-facing failure messages go.
type NotifyConfig struct {
	Console      bool   `toml:"console"`
	WebsocketURL string `toml:"websocket_url"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Session    *string // --session flag
	BaseURL    *string // --base-url flag
	Backend    *string // --store flag
}

// Resolved is the effective configuration after all override layers, with
// durations parsed and the store path filled in.
type Resolved struct {
	Config

	ConfigPath  string
	Timeout     time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration // 0 = uncapped
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validation range constants.
const (
	minMaxRetries = 0
	maxMaxRetries = 10
	minJitter     = 0.0
	maxJitter     = 1.0
	minRedisDB    = 0
)

var (
	validBackends   = []string{BackendMemory, BackendFile, BackendSQLite, BackendKeyring, BackendRedis}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
)

// Validate checks all configuration values and returns every error found,
// so one pass shows the user everything to fix.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTransport(&cfg.Transport)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateNotify(&cfg.Notify)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateTransport(t *TransportConfig) []error {
	var errs []error

	if err := validateHTTPURL(t.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("base_url: %w", err))
	}

	if d, err := parseDuration(t.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("timeout: invalid duration %q: %w", t.Timeout, err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("timeout: must be positive, got %q", t.Timeout))
	}

	if t.MaxRetries < minMaxRetries || t.MaxRetries > maxMaxRetries {
		errs = append(errs, fmt.Errorf("max_retries: must be between %d and %d, got %d",
			minMaxRetries, maxMaxRetries, t.MaxRetries))
	}

	if d, err := parseDuration(t.BaseBackoff); err != nil {
		errs = append(errs, fmt.Errorf("base_backoff: invalid duration %q: %w", t.BaseBackoff, err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("base_backoff: must be positive, got %q", t.BaseBackoff))
	}

	if d, err := parseDuration(t.MaxBackoff); err != nil {
		errs = append(errs, fmt.Errorf("max_backoff: invalid duration %q: %w", t.MaxBackoff, err))
	} else if d < 0 {
		errs = append(errs, fmt.Errorf("max_backoff: must not be negative, got %q", t.MaxBackoff))
	}

	if t.Jitter < minJitter || t.Jitter > maxJitter {
		errs = append(errs, fmt.Errorf("jitter: must be between %.1f and %.1f, got %g",
			minJitter, maxJitter, t.Jitter))
	}

	if !strings.HasPrefix(t.RefreshPath, "/") {
		errs = append(errs, fmt.Errorf("refresh_path: must start with /, got %q", t.RefreshPath))
	}

	if !strings.HasPrefix(t.LoginPath, "/") {
		errs = append(errs, fmt.Errorf("login_path: must start with /, got %q", t.LoginPath))
	}

	for _, q := range t.QuietNotFound {
		if q == "" {
			errs = append(errs, errors.New("quiet_not_found: entries must not be empty"))
		}
	}

	return errs
}

func validateStore(s *StoreConfig) []error {
	var errs []error

	if !slices.Contains(validBackends, s.Backend) {
		errs = append(errs, fmt.Errorf("backend: must be one of %s, got %q",
			strings.Join(validBackends, ", "), s.Backend))
	}

	if s.Backend == BackendRedis && s.RedisAddr == "" {
		errs = append(errs, errors.New("redis_addr: required when backend is \"redis\""))
	}

	if s.RedisDB < minRedisDB {
		errs = append(errs, fmt.Errorf("redis_db: must not be negative, got %d", s.RedisDB))
	}

	if s.Backend == BackendKeyring && s.KeyringService == "" {
		errs = append(errs, errors.New("keyring_service: required when backend is \"keyring\""))
	}

	if s.Watch && s.Backend != BackendFile {
		errs = append(errs, fmt.Errorf("watch: only supported by the file backend, got %q", s.Backend))
	}

	if strings.Contains(s.Session, ":") {
		errs = append(errs, fmt.Errorf("session: must not contain ':', got %q", s.Session))
	}

	return errs
}

func validateNotify(n *NotifyConfig) []error {
	if n.WebsocketURL == "" {
		return nil
	}

	u, err := url.Parse(n.WebsocketURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return []error{fmt.Errorf("websocket_url: must be an absolute ws:// or wss:// URL, got %q", n.WebsocketURL)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !slices.Contains(validLogLevels, l.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %s, got %q",
			strings.Join(validLogLevels, ", "), l.LogLevel))
	}

	if !slices.Contains(validLogFormats, l.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format: must be one of %s, got %q",
			strings.Join(validLogFormats, ", "), l.LogFormat))
	}

	return errs
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an absolute http:// or https:// URL, got %q", raw)
	}

	return nil
}

package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as an annotated TOML-like
// summary to w. This powers "config show": the values after all override
// layers (defaults -> file -> env -> CLI) have been applied.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", displayPath(r.ConfigPath))

	renderTransportSection(ew, &r.Transport)
	renderStoreSection(ew, &r.Store)
	renderNotifySection(ew, &r.Notify)
	renderLoggingSection(ew, &r.Logging)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func displayPath(p string) string {
	if p == "" {
		return "(none)"
	}

	return p
}

func renderTransportSection(ew *errWriter, t *TransportConfig) {
	ew.printf("[transport]\n")
	ew.printf("  base_url        = %q\n", t.BaseURL)
	ew.printf("  timeout         = %q\n", t.Timeout)
	ew.printf("  max_retries     = %d\n", t.MaxRetries)
	ew.printf("  base_backoff    = %q\n", t.BaseBackoff)
	ew.printf("  max_backoff     = %q\n", t.MaxBackoff)
	ew.printf("  jitter          = %g\n", t.Jitter)

	if t.UserAgent != "" {
		ew.printf("  user_agent      = %q\n", t.UserAgent)
	}

	ew.printf("  quiet_not_found = [%s]\n", joinQuoted(t.QuietNotFound))
	ew.printf("  refresh_path    = %q\n", t.RefreshPath)
	ew.printf("  login_path      = %q\n", t.LoginPath)
	ew.printf("\n")
}

func renderStoreSection(ew *errWriter, s *StoreConfig) {
	ew.printf("[store]\n")
	ew.printf("  backend         = %q\n", s.Backend)

	if s.Path != "" {
		ew.printf("  path            = %q\n", s.Path)
	}

	ew.printf("  session         = %q\n", s.Session)

	switch s.Backend {
	case BackendRedis:
		ew.printf("  redis_addr      = %q\n", s.RedisAddr)
		ew.printf("  redis_db        = %d\n", s.RedisDB)
	case BackendKeyring:
		ew.printf("  keyring_service = %q\n", s.KeyringService)
	}

	ew.printf("  watch           = %t\n", s.Watch)
	ew.printf("\n")
}

func renderNotifySection(ew *errWriter, n *NotifyConfig) {
	ew.printf("[notify]\n")
	ew.printf("  console         = %t\n", n.Console)

	if n.WebsocketURL != "" {
		ew.printf("  websocket_url   = %q\n", n.WebsocketURL)
	}

	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level       = %q\n", l.LogLevel)
	ew.printf("  log_format      = %q\n", l.LogFormat)
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}

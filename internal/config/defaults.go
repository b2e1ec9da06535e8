package config

// Default values for configuration options. These are "layer 0" of the
// override chain and work without any config file.
const (
	defaultBaseURL        = "http://localhost:8080/api"
	defaultTimeout        = "30s"
	defaultMaxRetries     = 3
	defaultBaseBackoff    = "1s"
	defaultMaxBackoff     = "0"
	defaultRefreshPath    = "/auth/refresh"
	defaultLoginPath      = "/auth/login"
	defaultBackend        = BackendFile
	defaultKeyringService = "raffle-client"
	defaultRedisAddr      = "localhost:6379"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
)

// defaultQuietNotFound lists path fragments whose 404s are expected and
// never shown to the user.
var defaultQuietNotFound = []string{"/search"}

// DefaultConfig returns a Config populated with all default values. It is
// both the starting point for TOML decoding (so unset fields keep their
// defaults) and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Transport: defaultTransportConfig(),
		Store:     defaultStoreConfig(),
		Notify:    NotifyConfig{Console: true},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}

func defaultTransportConfig() TransportConfig {
	quiet := make([]string, len(defaultQuietNotFound))
	copy(quiet, defaultQuietNotFound)

	return TransportConfig{
		BaseURL:       defaultBaseURL,
		Timeout:       defaultTimeout,
		MaxRetries:    defaultMaxRetries,
		BaseBackoff:   defaultBaseBackoff,
		MaxBackoff:    defaultMaxBackoff,
		QuietNotFound: quiet,
		RefreshPath:   defaultRefreshPath,
		LoginPath:     defaultLoginPath,
	}
}

func defaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:        defaultBackend,
		KeyringService: defaultKeyringService,
		RedisAddr:      defaultRedisAddr,
	}
}

package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "RAFFLE_CLIENT_CONFIG"
	EnvSession = "RAFFLE_CLIENT_SESSION"
	EnvBaseURL = "RAFFLE_CLIENT_BASE_URL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // RAFFLE_CLIENT_CONFIG: override config file path
	Session    string // RAFFLE_CLIENT_SESSION: credential namespace
	BaseURL    string // RAFFLE_CLIENT_BASE_URL: API root
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Session:    os.Getenv(EnvSession),
		BaseURL:    os.Getenv(EnvBaseURL),
	}
}

package kvstore

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keychain service name used when none is configured.
const DefaultKeyringService = "raffle-client"

// Keyring stores keys in the OS keychain (macOS Keychain, Secret Service,
// Windows Credential Manager). Each key is one keychain item under service.
type Keyring struct {
	service string
}

// NewKeyring returns a Keyring backend for service.
func NewKeyring(service string) *Keyring {
	if service == "" {
		service = DefaultKeyringService
	}

	return &Keyring{service: service}
}

// ReadKey returns the value stored under name.
func (k *Keyring) ReadKey(name string) (string, bool, error) {
	v, err := keyring.Get(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("kvstore: keyring get %q: %w", name, err)
	}

	return v, true, nil
}

// WriteKey stores value under name.
func (k *Keyring) WriteKey(name, value string) error {
	if err := keyring.Set(k.service, name, value); err != nil {
		return fmt.Errorf("kvstore: keyring set %q: %w", name, err)
	}

	return nil
}

// DeleteKey removes name. Missing keys are not an error.
func (k *Keyring) DeleteKey(name string) error {
	err := keyring.Delete(k.service, name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("kvstore: keyring delete %q: %w", name, err)
	}

	return nil
}

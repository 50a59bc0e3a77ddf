// Package credential keeps the web session in the system keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/dabir-notify/internal/api"
)

const serviceName = "dabir"

// Keyring item keys.
const (
	KeySessionID = "session-id"
	KeyCSRFToken = "csrf-token"
)

// ErrNotFound is returned when no credential is stored under a key.
var ErrNotFound = keyring.ErrKeyNotFound

// opener is replaced in tests.
var opener = openKeyring

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/dabir/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("dabir-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// UseKeyring makes the package read and write ring instead of the system
// keyring.
func UseKeyring(ring keyring.Keyring) {
	opener = func() (keyring.Keyring, error) { return ring, nil }
}

// Get retrieves a credential value by key.
func Get(key string) (string, error) {
	ring, err := opener()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func Set(key string, value string) error {
	ring, err := opener()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "dabir " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key. A missing key is not an error.
func Delete(key string) error {
	ring, err := opener()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

// LoadSession reads the stored session. The CSRF token is optional.
func LoadSession() (api.Session, error) {
	id, err := Get(KeySessionID)
	if err != nil {
		return api.Session{}, err
	}
	token, err := Get(KeyCSRFToken)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return api.Session{}, err
	}
	return api.Session{SessionID: id, CSRFToken: token}, nil
}

// SaveSession stores s, removing a stale CSRF token when s has none.
func SaveSession(s api.Session) error {
	if err := Set(KeySessionID, s.SessionID); err != nil {
		return err
	}
	if s.CSRFToken == "" {
		return Delete(KeyCSRFToken)
	}
	return Set(KeyCSRFToken, s.CSRFToken)
}

// ClearSession forgets the stored session.
func ClearSession() error {
	if err := Delete(KeySessionID); err != nil {
		return err
	}
	return Delete(KeyCSRFToken)
}

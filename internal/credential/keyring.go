// Package credential keeps API tokens in the system keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "workera"

// ErrNoToken is returned when no token is stored for a user.
var ErrNoToken = errors.New("credential: no token stored")

// Vault stores credentials in a keyring.
type Vault struct {
	ring keyring.Keyring
}

// Open returns a vault on the system keyring.
func Open() (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/workera/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("workera-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Vault{ring: ring}, nil
}

// New returns a vault on ring.
func New(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

func tokenKey(userID string) string {
	return "api-token-" + userID
}

// Get retrieves a credential value by key.
func (v *Vault) Get(key string) (string, error) {
	item, err := v.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (v *Vault) Set(key string, value string) error {
	err := v.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "workera " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func (v *Vault) Delete(key string) error {
	if err := v.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Token returns the API token of a user, or ErrNoToken.
func (v *Vault) Token(userID string) (string, error) {
	tok, err := v.Get(tokenKey(userID))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w for user %s", ErrNoToken, userID)
	}
	return tok, err
}

// SetToken stores the API token of a user.
func (v *Vault) SetToken(userID, token string) error {
	return v.Set(tokenKey(userID), token)
}

// DeleteToken removes the API token of a user. A missing token is not an
// error.
func (v *Vault) DeleteToken(userID string) error {
	err := v.Delete(tokenKey(userID))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

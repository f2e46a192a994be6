// Package vault provides access to the OS-native secret store (macOS Keychain,
// Secret Service on Linux, Windows Credential Manager).
package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

// DefaultService is the service name under which entries are stored.
const DefaultService = "agent-profiles"

var (
	// ErrNotFound is returned when no entry exists for an account.
	ErrNotFound = errors.New("secret not found in credential vault")

	// ErrUnavailable is returned when the platform has no usable secret store.
	ErrUnavailable = errors.New("credential vault unavailable")
)

// Vault reads and writes secrets for one service name.
type Vault struct {
	service string
}

// New creates a vault for service. An empty service uses DefaultService.
func New(service string) *Vault {
	if service == "" {
		service = DefaultService
	}
	return &Vault{service: service}
}

// Service returns the service name entries are stored under.
func (v *Vault) Service() string {
	return v.service
}

// Get returns the secret stored for account.
func (v *Vault) Get(account string) (string, error) {
	secret, err := keyring.Get(v.service, account)
	if err != nil {
		return "", translate(err, account)
	}
	return secret, nil
}

// Set stores secret for account, replacing any existing value.
func (v *Vault) Set(account, secret string) error {
	if err := keyring.Set(v.service, account, secret); err != nil {
		return translate(err, account)
	}
	return nil
}

// Delete removes the entry for account. Deleting a missing entry is not an error.
func (v *Vault) Delete(account string) error {
	err := keyring.Delete(v.service, account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return translate(err, account)
	}
	return nil
}

// TokenFor returns the access token stored for a profile's config directory.
func (v *Vault) TokenFor(configDir string) (string, error) {
	return v.Get(TokenAccount(configDir))
}

// SetTokenFor stores the access token for a profile's config directory.
func (v *Vault) SetTokenFor(configDir, token string) error {
	return v.Set(TokenAccount(configDir), token)
}

// DeleteTokenFor removes the access token stored for a profile's config directory.
func (v *Vault) DeleteTokenFor(configDir string) error {
	return v.Delete(TokenAccount(configDir))
}

// TokenAccount derives the vault account name of a config directory.
// The path is hashed so that entries stay short and do not leak directory names.
func TokenAccount(configDir string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(configDir)))
	return "oauth-token-" + hex.EncodeToString(sum[:8])
}

func translate(err error, account string) error {
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, keyring.ErrUnsupportedPlatform):
		return ErrUnavailable
	default:
		return fmt.Errorf("credential vault %s: %w", account, err)
	}
}

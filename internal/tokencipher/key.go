package tokencipher

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// KeyAccount is the vault entry under which the token key is kept.
const KeyAccount = "token-encryption-key"

// SecretStore is the subset of the credential vault used to hold the key.
type SecretStore interface {
	Get(account string) (string, error)
	Set(account, value string) error
}

// LoadOrCreateKey returns the token key. The vault is consulted first, then keyPath.
// When neither holds a key a new one is generated and written to both; a vault that
// cannot store it is logged and the key file alone is used.
func LoadOrCreateKey(store SecretStore, keyPath string, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if store != nil {
		if encoded, err := store.Get(KeyAccount); err == nil {
			key, decodeErr := decodeKey(encoded)
			if decodeErr == nil {
				return key, nil
			}
			logger.Warn("ignoring malformed token key in credential vault", "error", decodeErr)
		} else {
			logger.Debug("token key not in credential vault", "error", err)
		}
	}

	if data, err := os.ReadFile(keyPath); err == nil {
		key, decodeErr := decodeKey(string(data))
		if decodeErr != nil {
			return nil, fmt.Errorf("read token key %s: %w", keyPath, decodeErr)
		}
		return key, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read token key %s: %w", keyPath, err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate token key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(encoded+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write token key: %w", err)
	}

	if store != nil {
		if err := store.Set(KeyAccount, encoded); err != nil {
			logger.Warn("could not store token key in credential vault", "error", err)
		}
	}

	logger.Info("generated new token encryption key", "path", keyPath)
	return key, nil
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

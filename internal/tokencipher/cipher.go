// Package tokencipher encrypts access tokens before they are written to disk.
package tokencipher

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Prefix marks values produced by Encrypt.
const Prefix = "enc:v1:"

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	// ErrInvalidCiphertext is returned for input that was not produced by Encrypt.
	ErrInvalidCiphertext = errors.New("invalid token ciphertext")

	// ErrDecrypt is returned when well-formed ciphertext fails authentication,
	// e.g. it was tampered with or encrypted under another key.
	ErrDecrypt = errors.New("token decryption failed")
)

// Cipher encrypts and decrypts tokens with XChaCha20-Poly1305.
type Cipher struct {
	key []byte
}

// New creates a cipher from a 32 byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Cipher{key: append([]byte(nil), key...)}, nil
}

// Encrypt seals plaintext and returns the printable ciphertext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("create aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(Prefix))
	return Prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, Prefix) {
		return "", ErrInvalidCiphertext
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ciphertext, Prefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("create aead: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrInvalidCiphertext
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(Prefix))
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// IsEncrypted reports whether s looks like a value produced by Encrypt.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, Prefix)
}

// Redact returns a display-safe placeholder for a secret.
func Redact(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}

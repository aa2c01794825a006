// Package secrets seals provider API keys at rest. Symmetric AEAD
// (XChaCha20-Poly1305) with a random nonce per sealing; the output is
// url-safe base64 so it can live in a JSON config file.
// This is a leaf package with no domain dependencies.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const envEncryptionKey = "NOVA_ENCRYPTION_KEY"

// ErrInvalidCiphertext is returned when a sealed value cannot be opened:
// wrong key, truncated payload, or tampering.
var ErrInvalidCiphertext = errors.New("secrets: invalid ciphertext")

// Sealer seals and opens short secrets with a fixed 32-byte key.
type Sealer struct {
	key []byte
}

// NewSealer creates a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("secrets: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: key}, nil
}

// FromEnv builds a Sealer from NOVA_ENCRYPTION_KEY (url-safe base64). When the
// variable is unset a fresh key is generated and exported into the process
// environment so the session stays consistent, with a warning telling the
// operator to persist it: sealed values do not survive a restart otherwise.
func FromEnv() (*Sealer, error) {
	encoded := os.Getenv(envEncryptionKey)
	if encoded == "" {
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("secrets: generate key: %w", err)
		}
		encoded = base64.URLEncoding.EncodeToString(key)
		os.Setenv(envEncryptionKey, encoded) //nolint:errcheck
		slog.Warn("NOVA_ENCRYPTION_KEY not set; generated an ephemeral key",
			"hint", "set NOVA_ENCRYPTION_KEY="+encoded+" to keep sealed API keys across restarts")
		return NewSealer(key)
	}
	key, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("secrets: decode %s: %w", envEncryptionKey, err)
	}
	return NewSealer(key)
}

// Seal encrypts a plaintext secret. Empty input seals to the empty string.
func (s *Sealer) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("secrets: init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Empty input opens to the empty
// string; anything undecryptable fails with ErrInvalidCiphertext.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("secrets: init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

// IsValid reports whether a sealed value opens under the current key.
func (s *Sealer) IsValid(sealed string) bool {
	_, err := s.Open(sealed)
	return err == nil
}

// Mask renders a secret for display: all but the last four characters are
// replaced with bullets. Secrets of four characters or fewer mask entirely.
func Mask(secret string) string {
	const visible = 4
	if secret == "" {
		return ""
	}
	if len(secret) <= visible {
		return strings.Repeat("•", len(secret))
	}
	return strings.Repeat("•", len(secret)-visible) + secret[len(secret)-visible:]
}

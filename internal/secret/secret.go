// Package secret seals stored CalDAV passwords with a server-held key.
//
// Older records kept the password base64-encoded only. Reveal still reads
// those, and plaintext values pass through unchanged, so existing installs
// keep working until the settings are saved again.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"
)

const prefix = "enc:v1:"

var ErrInvalidKey = errors.New("secret key must be 32 bytes, hex or base64 encoded")

// Sealer encrypts and decrypts secrets with XChaCha20-Poly1305
type Sealer struct {
	key []byte
}

// ParseKey decodes a 32 byte key given as hex or standard base64
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := hex.DecodeString(s); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == chacha20poly1305.KeySize {
		return b, nil
	}
	return nil, ErrInvalidKey
}

// NewSealer creates a sealer from an encoded key
func NewSealer(encodedKey string) (*Sealer, error) {
	key, err := ParseKey(encodedKey)
	if err != nil {
		return nil, err
	}
	return &Sealer{key: key}, nil
}

// GenerateKey returns a random key in base64, for first-time setup
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// IsSealed reports whether stored was produced by Seal
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, prefix)
}

// Seal encrypts plaintext. Empty input stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(prefix))
	return prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Reveal returns the plaintext of a stored secret. Sealed values are
// decrypted, legacy base64 values are decoded, anything else is returned
// as is.
func (s *Sealer) Reveal(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	if !IsSealed(stored) {
		return RevealLegacy(stored), nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(stored, prefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed secret: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", errors.New("sealed secret too short")
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(prefix))
	if err != nil {
		return "", fmt.Errorf("open sealed secret: %w", err)
	}
	return string(plain), nil
}

// RevealLegacy reverses the old base64 obfuscation. Values that do not
// decode to printable text are treated as plaintext.
func RevealLegacy(stored string) string {
	decoded, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(decoded) == 0 || !printable(decoded) {
		return stored
	}
	return string(decoded)
}

func printable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

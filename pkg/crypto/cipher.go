package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Stored secrets look like "nonce:ciphertext", both parts base64. Values
// without the separator predate encryption and are passed through as-is.
const partSeparator = ":"

var (
	ErrCipherMismatch = errors.New("decryption failed: wrong key or tampered ciphertext")
	ErrMalformed      = errors.New("malformed encrypted value")
)

// Cipher handles at-rest encryption of tenant-supplied secrets using
// ChaCha20-Poly1305 with a key derived from the server-wide secret.
type Cipher struct {
	key []byte
}

// NewCipher derives a cipher key from the configured secret string.
// If the secret is empty, a random key is generated; values encrypted with
// it are unrecoverable after restart, so callers should warn.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating key: %w", err)
		}
		return &Cipher{key: key}, nil
	}

	sum := sha256.Sum256([]byte(secret))
	return &Cipher{key: sum[:]}, nil
}

// EncryptString encrypts plaintext and returns the "nonce:ciphertext" form.
// Each call uses a fresh random nonce, so encrypting the same plaintext
// twice yields different stored values.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(nonce) +
		partSeparator +
		base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString decrypts a stored "nonce:ciphertext" value. A value with no
// separator is treated as legacy plaintext and returned unchanged, so secrets
// configured before the encryption migration keep working.
func (c *Cipher) DecryptString(stored string) (string, error) {
	nonceB64, cipherB64, found := strings.Cut(stored, partSeparator)
	if !found {
		return stored, nil
	}

	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return "", fmt.Errorf("%w: decoding nonce: %v", ErrMalformed, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(cipherB64)
	if err != nil {
		return "", fmt.Errorf("%w: decoding ciphertext: %v", ErrMalformed, err)
	}

	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return "", ErrMalformed
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCipherMismatch
	}

	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value carries the encrypted form.
func IsEncrypted(stored string) bool {
	return strings.Contains(stored, partSeparator)
}

// GenerateRandomBytes generates cryptographically secure random bytes.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

// GenerateToken generates a URL-safe high-entropy opaque token.
func GenerateToken(length int) (string, error) {
	b, err := GenerateRandomBytes(length)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b), nil
}

// Package crypto encrypts backup payloads with AES-GCM under a PBKDF2-derived key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultIterations = 100000
	KeyLength         = 32
)

// ErrCiphertext is returned when a payload is too short or fails authentication.
var ErrCiphertext = errors.New("crypto: invalid ciphertext")

// AESGCM seals payloads as base64(nonce | ciphertext).
type AESGCM struct {
	aead cipher.AEAD
}

// New derives a key from passphrase and salt and builds the cipher.
// iterations <= 0 selects DefaultIterations.
func New(passphrase, salt string, iterations int) (*AESGCM, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: passphrase is required")
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, KeyLength, sha256.New)
	return NewWithKey(key)
}

// NewWithKey builds the cipher from a raw 16, 24 or 32 byte key.
func NewWithKey(key []byte) (*AESGCM, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (c *AESGCM) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *AESGCM) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return nil, ErrCiphertext
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, ErrCiphertext
	}
	return plain, nil
}

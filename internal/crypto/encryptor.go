// Package crypto seals OAuth tokens at rest with AES-256-GCM.
//
// Each Encrypt call draws a fresh random nonce, so sealing the same token
// twice yields different ciphertexts. Ciphertexts carry a version prefix so
// stores can tell sealed values from plaintext rows written before
// encryption was enabled.
//
//	enc, err := crypto.NewTokenEncryptor(os.Getenv("CREDENTIAL_ENCRYPTION_KEY"))
//	sealed, err := enc.Encrypt(record.RefreshToken)
//	plain, err := enc.Decrypt(sealed)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"workspace-assistant/internal/common/errors"
)

// SealedPrefix marks a value produced by Encrypt.
const SealedPrefix = "v1:"

const (
	kdfSalt       = "workspace-assistant-credentials"
	kdfIterations = 10000
)

// TokenEncryptor encrypts and decrypts token strings.
// It is safe for concurrent use.
type TokenEncryptor struct {
	aead cipher.AEAD
}

// NewTokenEncryptor derives a 32-byte AES key from key with PBKDF2-SHA256.
// The key must not be empty.
func NewTokenEncryptor(key string) (*TokenEncryptor, error) {
	if key == "" {
		return nil, errors.ValidationError("encryption key cannot be empty")
	}

	derivedKey := pbkdf2.Key([]byte(key), []byte(kdfSalt), kdfIterations, 32, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, errors.InternalError("failed to create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.InternalError("failed to create GCM", err)
	}

	return &TokenEncryptor{aead: gcm}, nil
}

// Encrypt seals plaintext and returns SealedPrefix followed by base64(nonce || ciphertext).
// Empty input stays empty.
func (e *TokenEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to create nonce", err)
	}

	ciphertext := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens a value produced by Encrypt. Values without SealedPrefix are
// returned unchanged; tampered or foreign ciphertexts fail.
func (e *TokenEncryptor) Decrypt(value string) (string, error) {
	if value == "" || !IsSealed(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", errors.InternalError("failed to decode ciphertext", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.ValidationError("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.InternalError("failed to decrypt", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries the SealedPrefix
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

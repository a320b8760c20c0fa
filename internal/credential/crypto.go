package credential

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"crypto/sha256"
)

const encPrefix = "enc:v1:"

// IntegrityError means a ciphertext failed to authenticate: wrong key or
// corrupted storage. Per spec §4.2, corrupted payloads never surface
// their raw contents in an error.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return "credential: integrity check failed: " + e.Reason
}

// DeriveKey turns an arbitrary passphrase into a 32-byte
// ChaCha20-Poly1305 key via HKDF-SHA256, with a fixed, package-specific
// info string so the same passphrase never collides with a key derived
// for a different purpose elsewhere in the system.
func DeriveKey(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("credential: encryption passphrase must not be empty")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("tau-agent-credential-store/v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("credential: derive key: %w", err)
	}
	return key, nil
}

// EncryptSecret encrypts plaintext per the requested mode. ModeNone is
// the identity transform; ModeKeyed seals with ChaCha20-Poly1305 using a
// fresh random nonce per call and returns "enc:v1:<base64(nonce||ct)>".
func EncryptSecret(plaintext string, mode EncryptionMode, key []byte) (string, error) {
	if plaintext == "" || mode == ModeNone {
		return plaintext, nil
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("credential: init AEAD: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("credential: generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecret reverses EncryptSecret. A value without the enc:v1:
// prefix passes through unchanged (covers ModeNone and legacy
// plaintext records). Decryption failure is always *IntegrityError.
func DecryptSecret(ciphertext string, key []byte) (string, error) {
	if !IsEncrypted(ciphertext) {
		return ciphertext, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, encPrefix))
	if err != nil {
		return "", &IntegrityError{Reason: "malformed base64"}
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("credential: init AEAD: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", &IntegrityError{Reason: "ciphertext too short"}
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &IntegrityError{Reason: "authentication failed"}
	}
	return string(plain), nil
}

// IsEncrypted reports whether value carries the enc:v1: prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}

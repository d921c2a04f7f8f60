// Package crypto generates API signing secrets and derives signing keys
// from operator passphrases.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// KeySize is the length in bytes of a derived HMAC key.
const KeySize = 32

// Argon2id parameters for DeriveKey.
const (
	argonTime    = 1
	argonMemory  = 19 * 1024 // KiB
	argonThreads = 2
)

// GenerateSecret returns n random bytes hex-encoded, suitable as a
// configured JWT secret.
func GenerateSecret(n int) (string, error) {
	if n <= 0 {
		n = KeySize
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("crypto: generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DeriveKey stretches a passphrase into a KeySize-byte key using Argon2id.
// The same passphrase and salt always yield the same key, so tokens issued
// by the CLI validate on the server.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, KeySize)
}

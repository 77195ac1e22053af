package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for password hashing.
const (
	argonTime    = 2
	argonMemory  = 4096 // KiB
	argonThreads = 1
	argonKeyLen  = 128
	saltLen      = 16
)

var ErrBadPasswordHash = errors.New("malformed password hash")

// HashPassword derives an argon2id hash of password under a random salt and
// encodes both as "salt:<base64>:hash:<base64>".
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("salt:%s:hash:%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword re-derives the hash under the stored salt and compares in
// constant time.
func VerifyPassword(password, stored string) (bool, error) {
	parts := strings.Split(stored, ":")
	if len(parts) != 4 || parts[0] != "salt" || parts[2] != "hash" {
		return false, ErrBadPasswordHash
	}

	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, ErrBadPasswordHash
	}
	want, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return false, ErrBadPasswordHash
	}

	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

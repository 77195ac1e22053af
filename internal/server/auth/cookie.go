package auth

import (
	"crypto/sha256"
	"encoding/base64"

	"jobvault/internal/server/cryptox"
)

// CookieCipher encrypts session tokens before they leave the server inside
// a cookie and decrypts them on the way back in. The AES key is derived by
// hashing the deployment secret once at construction; the secret itself is
// not retained.
type CookieCipher struct {
	cipher *cryptox.BlobCipher
}

// NewCookieCipher derives the cookie key from secret with SHA-256.
func NewCookieCipher(secret []byte) (*CookieCipher, error) {
	key := sha256.Sum256(secret)
	c, err := cryptox.NewBlobCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &CookieCipher{cipher: c}, nil
}

// Encrypt returns the base64-encoded, IV-prefixed AES-CBC encryption of token.
func (c *CookieCipher) Encrypt(token string) (string, error) {
	data, err := c.cipher.Encrypt([]byte(token))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decrypt reverses Encrypt. Any failure — bad base64, truncated input, bad
// padding — reports ok=false; callers treat that exactly like an absent
// token.
func (c *CookieCipher) Decrypt(encrypted string) (token string, ok bool) {
	if encrypted == "" {
		return "", false
	}
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", false
	}
	plaintext, err := c.cipher.Decrypt(data)
	if err != nil {
		return "", false
	}
	return string(plaintext), true
}

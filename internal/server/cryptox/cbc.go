// Package cryptox implements the symmetric encryption used for stored blobs
// and session cookies: AES-CBC with a random IV prefixed to the ciphertext.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

var (
	ErrKeySize    = errors.New("encryption key must be 32 bytes")
	ErrCiphertext = errors.New("malformed ciphertext")
)

// BlobCipher encrypts and decrypts byte blobs with AES-256-CBC.
// The wire layout is [16-byte IV][ciphertext].
type BlobCipher struct {
	key []byte
}

// NewBlobCipher creates a cipher from a 32-byte key.
func NewBlobCipher(key []byte) (*BlobCipher, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &BlobCipher{key: k}, nil
}

// Encrypt pads the plaintext with PKCS#7, encrypts it under a fresh random
// IV, and returns the IV-prefixed ciphertext.
func (c *BlobCipher) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return out, nil
}

// Decrypt reverses Encrypt, recovering the IV from the first 16 bytes.
// Truncated input or bad padding yields ErrCiphertext.
func (c *BlobCipher) Decrypt(data []byte) ([]byte, error) {
	if len(data) < 2*aes.BlockSize || (len(data)-aes.BlockSize)%aes.BlockSize != 0 {
		return nil, ErrCiphertext
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	iv := data[:aes.BlockSize]
	plaintext := make([]byte, len(data)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, data[aes.BlockSize:])

	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrCiphertext
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrCiphertext
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrCiphertext
		}
	}
	return data[:len(data)-n], nil
}

package auth

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestCookieCipher_RoundTrip(t *testing.T) {
	c, err := NewCookieCipher([]byte("deployment secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tokens := []string{
		"a",
		"eyJhbGciOiJIUzI1NiJ9.payload.signature",
		strings.Repeat("long-token-", 50),
	}
	for _, token := range tokens {
		encrypted, err := c.Encrypt(token)
		if err != nil {
			t.Fatalf("encrypt failed: %v", err)
		}
		if encrypted == token {
			t.Error("ciphertext equals plaintext")
		}

		got, ok := c.Decrypt(encrypted)
		if !ok {
			t.Fatal("decrypt reported failure for valid ciphertext")
		}
		if got != token {
			t.Errorf("round trip mismatch: got %q", got)
		}
	}
}

func TestCookieCipher_Decrypt_NeverFails(t *testing.T) {
	c, err := NewCookieCipher([]byte("deployment secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every failure mode must report ok=false, identical to "no token".
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"valid base64 too short", base64.StdEncoding.EncodeToString([]byte("short"))},
		{"valid base64 garbage blocks", base64.StdEncoding.EncodeToString(make([]byte, 48))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := c.Decrypt(tc.input); ok {
				t.Error("expected ok=false")
			}
		})
	}
}

func TestCookieCipher_KeyDerivation(t *testing.T) {
	t.Run("same secret decrypts", func(t *testing.T) {
		a, _ := NewCookieCipher([]byte("shared"))
		b, _ := NewCookieCipher([]byte("shared"))

		encrypted, _ := a.Encrypt("token")
		if got, ok := b.Decrypt(encrypted); !ok || got != "token" {
			t.Errorf("expected independent instances to share the derived key, got %q ok=%v", got, ok)
		}
	})

	t.Run("different secret does not", func(t *testing.T) {
		a, _ := NewCookieCipher([]byte("one"))
		b, _ := NewCookieCipher([]byte("two"))

		encrypted, _ := a.Encrypt("token")
		if got, ok := b.Decrypt(encrypted); ok && got == "token" {
			t.Error("token recovered under the wrong secret")
		}
	})
}

// Package auth implements the session layer: signed bearer tokens with
// sliding rotation, the transport cipher that protects them inside cookies,
// and the request gateway that composes the two.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenLifetime is the fixed validity window granted at issuance.
	TokenLifetime = time.Hour
	// RotateWithin is the remaining-lifetime threshold below which a token
	// is transparently reissued.
	RotateWithin = 30 * time.Minute
)

// ErrInvalidToken covers every routine validation failure: malformed,
// unsigned, tampered, or expired tokens. It is an expected outcome on any
// request carrying a stale cookie, never a fault.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the payload carried inside a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// TokenCodec issues and validates signed session tokens. It is stateless:
// no revocation list, no server-side session storage.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec creates a codec signing with the given secret.
func NewTokenCodec(secret []byte) *TokenCodec {
	return &TokenCodec{secret: secret, now: time.Now}
}

// NewTokenCodecAt is like NewTokenCodec with an injectable clock.
func NewTokenCodecAt(secret []byte, now func() time.Time) *TokenCodec {
	return &TokenCodec{secret: secret, now: now}
}

// Issue builds and signs a token for userID with a fresh full lifetime.
func (c *TokenCodec) Issue(userID string) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
		},
		UserID: userID,
	})
	return token.SignedString(c.secret)
}

// Validate verifies the signature and expiry of tokenString and returns its
// claims. Every failure mode maps to ErrInvalidToken.
func (c *TokenCodec) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Rotate reissues a token for the same user when less than RotateWithin of
// its lifetime remains. It returns ("", false, nil) when no rotation is due.
func (c *TokenCodec) Rotate(claims *Claims) (string, bool, error) {
	if claims.ExpiresAt == nil {
		return "", false, ErrInvalidToken
	}
	if claims.ExpiresAt.Sub(c.now()) >= RotateWithin {
		return "", false, nil
	}
	token, err := c.Issue(claims.UserID)
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

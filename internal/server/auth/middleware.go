package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// CookieName is the session token carrier, fixed across the deployment.
const CookieName = "authToken"

// userIDKey is the echo context key the gateway stores the authenticated
// user id under.
const userIDKey = "authUserID"

// Gateway returns the per-request session interceptor: it extracts and
// decrypts the session cookie, validates the token, performs sliding
// rotation, and forwards the authenticated user id to the handler.
//
// Missing, undecryptable, or invalid tokens are rejected with 401 — all
// routine outcomes. Only an internal failure while re-encrypting a rotated
// token (key misconfiguration) produces 500, so configuration errors stay
// observably distinct from ordinary unauthenticated traffic.
func Gateway(cipher *CookieCipher, codec *TokenCodec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(CookieName)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "no authentication token provided")
			}

			token, ok := cipher.Decrypt(cookie.Value)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "no authentication token provided")
			}

			claims, err := codec.Validate(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired session")
			}

			rotated, due, err := codec.Rotate(claims)
			if err != nil {
				slog.Error("token rotation failed", "error", err)
				return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}
			if due {
				encrypted, err := cipher.Encrypt(rotated)
				if err != nil {
					slog.Error("cookie encryption failed", "error", err)
					return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
				}
				SetSessionCookie(c, encrypted)
			}

			c.Set(userIDKey, claims.UserID)
			return next(c)
		}
	}
}

// SetSessionCookie attaches an encrypted session token to the response.
func SetSessionCookie(c echo.Context, encryptedToken string) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    encryptedToken,
		Expires:  time.Now().Add(TokenLifetime),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
		Path:     "/",
	})
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
		Path:     "/",
	})
}

// UserID returns the authenticated user id the gateway stored on the
// request, or "" when the request did not pass through the gateway.
func UserID(c echo.Context) string {
	if id, ok := c.Get(userIDKey).(string); ok {
		return id
	}
	return ""
}

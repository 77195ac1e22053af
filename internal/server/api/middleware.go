package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"jobvault/internal/server/auth"

	"github.com/labstack/echo/v4"
)

// bucket tracks the rate limit state for a single client IP.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter is a per-IP token-bucket limiter guarding the upload endpoint,
// since intake is by far the most expensive request the server handles.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // max tokens
}

// NewRateLimiter creates a rate limiter with the given refill rate
// (requests/sec) and burst size.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rps,
		burst:   burst,
	}

	// Drop idle buckets every 5 minutes
	go func() {
		for {
			time.Sleep(5 * time.Minute)
			rl.prune()
		}
	}()

	return rl
}

// Middleware returns an echo middleware function that enforces rate limits.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !rl.allow(ip) {
				slog.Warn("rate limit exceeded", "ip", ip)
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "rate limit exceeded, try again later",
				})
			}
			return next(c)
		}
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[ip]
	now := time.Now()

	if !exists {
		rl.buckets[ip] = &bucket{
			tokens:   float64(rl.burst) - 1,
			lastSeen: now,
		}
		return true
	}

	elapsed := now.Sub(b.lastSeen).Seconds()
	b.tokens += elapsed * rl.rate
	if b.tokens > float64(rl.burst) {
		b.tokens = float64(rl.burst)
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}

	b.tokens--
	return true
}

func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
		}
	}
}

// RequestLogger returns an echo middleware that logs requests using slog.
// The authenticated user id is included when the session gateway has run.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if userID := auth.UserID(c); userID != "" {
				attrs = append(attrs, "user_id", userID)
			}
			slog.Info("request", attrs...)

			return err
		}
	}
}

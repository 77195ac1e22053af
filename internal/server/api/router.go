package api

import (
	"jobvault/internal/server/auth"
	"jobvault/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and
// middleware. Everything under /files, plus the session probe, sits behind
// the session gateway.
func SetupRouter(handler *Handler, cipher *auth.CookieCipher, codec *auth.TokenCodec, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	e.Use(RequestLogger())

	// Rate limiter on upload endpoint only
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	gateway := auth.Gateway(cipher, codec)

	// Health
	e.GET("/health", handler.HandleHealth)

	// Accounts
	e.POST("/users", handler.HandleRegister)
	e.POST("/users/login", handler.HandleLogin)
	e.POST("/users/logout", handler.HandleLogout)
	e.GET("/users/check", handler.HandleCheck, gateway)

	// File vault (session-gated)
	files := e.Group("/files", gateway)
	files.POST("/upload", handler.HandleUpload, uploadLimiter.Middleware())
	files.GET("/all", handler.HandleList)
	files.GET("/:id", handler.HandleDownload)
	files.DELETE("/:id", handler.HandleDelete)
	files.PUT("/link/:fileId", handler.HandleLink)
	files.PUT("/unlink/:fileId", handler.HandleUnlink)

	return e
}

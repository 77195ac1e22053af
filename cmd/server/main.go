package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobvault/internal/server/api"
	"jobvault/internal/server/auth"
	"jobvault/internal/server/config"
	"jobvault/internal/server/cryptox"
	"jobvault/internal/server/database"
	"jobvault/internal/server/service"
	"jobvault/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_path", cfg.StoragePath,
		"max_file_size", cfg.MaxFileSize,
		"sweep_interval", cfg.SweepInterval,
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize storage
	store := storage.NewFileSystemStore(cfg.StoragePath)
	if err := store.EnsureDir(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("file storage initialized", "path", cfg.StoragePath)

	// Ciphers and token codec
	blobs, err := cryptox.NewBlobCipher(cfg.EncryptionKey)
	if err != nil {
		slog.Error("failed to initialize blob cipher", "error", err)
		os.Exit(1)
	}
	cookies, err := auth.NewCookieCipher(cfg.EncryptionKey)
	if err != nil {
		slog.Error("failed to initialize cookie cipher", "error", err)
		os.Exit(1)
	}
	codec := auth.NewTokenCodec(cfg.TokenSecret)

	// Repositories and services
	files := database.NewFileRepository(db)
	jobs := database.NewJobRepository(db)
	links := database.NewLinkRepository(db)
	users := database.NewUserRepository(db)

	vault := service.NewVaultService(files, jobs, links, store, blobs, cfg.MaxFileSize)
	accounts := service.NewUserService(users)

	// Start the artifact sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweeper := storage.NewSweeper(files, store, cfg.SweepInterval, cfg.SweepInterval)
	sweeper.Start(sweepCtx)

	// Setup HTTP router
	handler := api.NewHandler(vault, accounts, codec, cookies, db)
	e := api.SetupRouter(handler, cookies, codec, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the sweeper
	sweepCancel()
	sweeper.Wait()

	slog.Info("server exited cleanly")
}

package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations contains all database migrations in order.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_users",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id            VARCHAR(36)  PRIMARY KEY,
				email         VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(512) NOT NULL,
				created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		Version: "000002_create_files",
		SQL: `
			CREATE TABLE IF NOT EXISTS files (
				id         VARCHAR(36)  PRIMARY KEY,
				user_id    VARCHAR(36)  NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name       VARCHAR(255) NOT NULL,
				file_type  VARCHAR(16)  NOT NULL,
				hash       VARCHAR(64)  NOT NULL,
				size_bytes BIGINT       NOT NULL,
				created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_files_user_id ON files(user_id);
		`,
	},
	{
		Version: "000003_create_jobs",
		SQL: `
			CREATE TABLE IF NOT EXISTS jobs (
				id         VARCHAR(36)  PRIMARY KEY,
				user_id    VARCHAR(36)  NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title      VARCHAR(255) NOT NULL,
				created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_jobs_user_id ON jobs(user_id);
		`,
	},
	{
		Version: "000004_create_job_file_links",
		SQL: `
			CREATE TABLE IF NOT EXISTS job_file_links (
				job_id     VARCHAR(36) NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
				file_id    VARCHAR(36) NOT NULL REFERENCES files(id) ON DELETE CASCADE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (job_id, file_id)
			);
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version)
	}

	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

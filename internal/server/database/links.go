package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrAlreadyLinked = errors.New("file is already linked to this job")
	ErrNotLinked     = errors.New("file is not linked to this job")
)

// JobRepository exposes the one projection of job records the vault needs:
// existence and ownership.
type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// GetByID retrieves a job by ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	err := r.db.Pool.QueryRow(ctx,
		"SELECT id, user_id, title FROM jobs WHERE id = $1", id,
	).Scan(&j.ID, &j.OwnerID, &j.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// LinkRepository maintains the many-to-many relation between files and jobs.
type LinkRepository struct {
	db *DB
}

func NewLinkRepository(db *DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Link records a file-job association. Linking an already-linked pair
// reports ErrAlreadyLinked; the insert itself is conflict-safe.
func (r *LinkRepository) Link(ctx context.Context, fileID, jobID string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO job_file_links (job_id, file_id)
		VALUES ($1, $2)
		ON CONFLICT (job_id, file_id) DO NOTHING
	`, jobID, fileID)
	if err != nil {
		return fmt.Errorf("failed to link file to job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyLinked
	}
	return nil
}

// Unlink removes a file-job association. Unlinking a pair that was never
// linked reports ErrNotLinked.
func (r *LinkRepository) Unlink(ctx context.Context, fileID, jobID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		"DELETE FROM job_file_links WHERE job_id = $1 AND file_id = $2", jobID, fileID)
	if err != nil {
		return fmt.Errorf("failed to unlink file from job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotLinked
	}
	return nil
}

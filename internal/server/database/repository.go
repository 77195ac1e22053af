package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrUserNotFound = errors.New("user not found")
	ErrJobNotFound  = errors.New("job not found")
)

const fileColumns = "id, user_id, name, file_type, hash, size_bytes, created_at, updated_at"

// FileRepository provides CRUD operations for stored-file records.
type FileRepository struct {
	db *DB
}

// NewFileRepository creates a new FileRepository.
func NewFileRepository(db *DB) *FileRepository {
	return &FileRepository{db: db}
}

// Create inserts a new file record.
func (r *FileRepository) Create(ctx context.Context, f *File) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO files (id, user_id, name, file_type, hash, size_bytes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		f.ID,
		f.OwnerID,
		f.DisplayName,
		string(f.FileType),
		f.ContentHash,
		f.SizeBytes,
		f.CreatedAt,
		f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

// GetByID retrieves a file record by its ID.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*File, error) {
	f := &File{}
	err := r.db.Pool.QueryRow(ctx,
		"SELECT "+fileColumns+" FROM files WHERE id = $1", id,
	).Scan(
		&f.ID,
		&f.OwnerID,
		&f.DisplayName,
		&f.FileType,
		&f.ContentHash,
		&f.SizeBytes,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file record: %w", err)
	}
	return f, nil
}

// ListByOwner returns all file records belonging to a user.
func (r *FileRepository) ListByOwner(ctx context.Context, ownerID string) ([]*File, error) {
	rows, err := r.db.Pool.Query(ctx,
		"SELECT "+fileColumns+" FROM files WHERE user_id = $1 ORDER BY created_at", ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list file records: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(
			&f.ID,
			&f.OwnerID,
			&f.DisplayName,
			&f.FileType,
			&f.ContentHash,
			&f.SizeBytes,
			&f.CreatedAt,
			&f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ListIDs returns the ids of every file record. Used by the orphan sweeper.
func (r *FileRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, "SELECT id FROM files")
	if err != nil {
		return nil, fmt.Errorf("failed to list file ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan file id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Touch bumps a file record's updated_at timestamp.
func (r *FileRepository) Touch(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE files SET updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to touch file record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

// Delete removes a file record by ID.
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM files WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFileNotFound
	}
	return nil
}

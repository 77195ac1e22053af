package database

import "time"

// FileType classifies a stored document.
type FileType string

const (
	FileTypeResume      FileType = "Resume"
	FileTypeCoverLetter FileType = "CoverLetter"
)

// File is a stored-file record. ContentHash is the SHA-256 of the encrypted
// blob on disk, not of the plaintext document.
type File struct {
	ID          string
	OwnerID     string
	DisplayName string
	FileType    FileType
	ContentHash string
	SizeBytes   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// User is an account row; the vault uses it only for login and as the
// ownership key on files and jobs.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Job is the minimal projection of a job record the vault needs: existence
// and ownership for link checks.
type Job struct {
	ID      string
	OwnerID string
	Title   string
}

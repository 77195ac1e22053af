// Package service contains the vault's business logic: the intake pipeline
// that turns an uploaded document into an encrypted, content-hashed blob,
// and the retrieval pipeline that serves it back after an integrity check.
package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"jobvault/internal/server/cryptox"
	"jobvault/internal/server/database"
	"jobvault/internal/server/pdf"
	"jobvault/internal/server/storage"

	"github.com/google/uuid"
)

// Sentinel errors for the service layer.
var (
	ErrInvalidFileType = errors.New("invalid file type provided")
	ErrNotPDF          = errors.New("only PDF files are allowed")
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrNotFound        = errors.New("file not found")
	ErrJobNotFound     = errors.New("job not found")
	ErrNotOwner        = errors.New("requester does not own this resource")
	ErrIntegrity       = errors.New("stored file failed its integrity check")
	ErrAlreadyLinked   = errors.New("file is already linked to this job")
	ErrNotLinked       = errors.New("file is not linked to this job")
)

// FileRecords is the slice of the record store the pipelines need.
type FileRecords interface {
	Create(ctx context.Context, f *database.File) error
	GetByID(ctx context.Context, id string) (*database.File, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*database.File, error)
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// JobRecords resolves job existence and ownership for link checks.
type JobRecords interface {
	GetByID(ctx context.Context, id string) (*database.Job, error)
}

// LinkRecords maintains the file-job relation.
type LinkRecords interface {
	Link(ctx context.Context, fileID, jobID string) error
	Unlink(ctx context.Context, fileID, jobID string) error
}

// UploadResult is returned after a successful intake run.
type UploadResult struct {
	FileID string `json:"fileId"`
}

// FileInfo is the listing projection of a stored file.
type FileInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	FileType    string `json:"fileType"`
}

// DownloadResult points at the transient plaintext archive produced by a
// retrieval run.
type DownloadResult struct {
	Path        string
	DisplayName string
}

// VaultService implements the file vault pipelines.
type VaultService struct {
	files       FileRecords
	jobs        JobRecords
	links       LinkRecords
	store       storage.Store
	blobs       *cryptox.BlobCipher
	maxFileSize int64
}

// NewVaultService creates the vault over the given record stores, artifact
// store, and blob cipher.
func NewVaultService(files FileRecords, jobs JobRecords, links LinkRecords, store storage.Store, blobs *cryptox.BlobCipher, maxFileSize int64) *VaultService {
	return &VaultService{
		files:       files,
		jobs:        jobs,
		links:       links,
		store:       store,
		blobs:       blobs,
		maxFileSize: maxFileSize,
	}
}

// Upload runs the intake pipeline:
// validate -> strip metadata -> archive -> encrypt -> hash -> persist.
// Every on-disk artifact created along the way is tracked in a cleanup list;
// a failure at any step deletes all of them before the error surfaces, so no
// intermediate ever outlives a failed request.
func (s *VaultService) Upload(ctx context.Context, ownerID, filename, fileTypeRaw string, data io.Reader) (*UploadResult, error) {
	// Cheap checks before touching any bytes.
	fileType, err := ParseFileType(fileTypeRaw)
	if err != nil {
		return nil, err
	}

	raw, err := s.readBounded(data)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(raw, pdf.Magic) {
		return nil, ErrNotPDF
	}

	displayName := SanitizeDisplayName(filename)

	scrubbed, err := pdf.StripMetadata(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to strip document metadata: %w", err)
	}

	// The on-disk name is always a fresh random identifier; the
	// client-supplied name never reaches the filesystem.
	fileID := uuid.NewString()

	var artifacts []string
	fail := func(err error) (*UploadResult, error) {
		s.removeArtifacts(artifacts)
		return nil, err
	}

	pdfPath := s.store.PDFPath(fileID)
	if err := s.store.Write(pdfPath, scrubbed); err != nil {
		return fail(err)
	}
	artifacts = append(artifacts, pdfPath)

	archive, err := buildArchive(displayName, scrubbed)
	if err != nil {
		return fail(fmt.Errorf("failed to archive document: %w", err))
	}
	archivePath := s.store.ArchivePath(fileID)
	if err := s.store.Write(archivePath, archive); err != nil {
		return fail(err)
	}
	artifacts = append(artifacts, archivePath)

	encrypted, err := s.blobs.Encrypt(archive)
	if err != nil {
		return fail(fmt.Errorf("failed to encrypt archive: %w", err))
	}
	encryptedPath := s.store.EncryptedPath(fileID)
	if err := s.store.Write(encryptedPath, encrypted); err != nil {
		return fail(err)
	}
	artifacts = append(artifacts, encryptedPath)

	// The plaintext intermediates are consumed; drop them immediately.
	if err := s.store.Remove(pdfPath); err != nil {
		return fail(err)
	}
	if err := s.store.Remove(archivePath); err != nil {
		return fail(err)
	}
	artifacts = []string{encryptedPath}

	// The content hash certifies the encrypted artifact as written, so it
	// is computed over a fresh read of the blob, not the in-memory bytes.
	persisted, err := s.store.Read(encryptedPath)
	if err != nil {
		return fail(fmt.Errorf("failed to re-read encrypted blob: %w", err))
	}
	sum := sha256.Sum256(persisted)

	now := time.Now().UTC()
	record := &database.File{
		ID:          fileID,
		OwnerID:     ownerID,
		DisplayName: displayName,
		FileType:    fileType,
		ContentHash: hex.EncodeToString(sum[:]),
		SizeBytes:   int64(len(persisted)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.files.Create(ctx, record); err != nil {
		return fail(fmt.Errorf("failed to persist file record: %w", err))
	}

	slog.Info("file stored",
		"file_id", fileID,
		"owner_id", ownerID,
		"file_type", fileType,
		"size_bytes", record.SizeBytes,
		"hash", record.ContentHash,
	)

	return &UploadResult{FileID: fileID}, nil
}

// Download runs the retrieval pipeline: lookup, ownership check, decrypt,
// integrity check. On success it returns the transient plaintext archive
// and a release function that the caller must invoke once the bytes have
// been streamed; the transient is already gone on every error return.
func (s *VaultService) Download(ctx context.Context, requesterID, fileID string) (*DownloadResult, func(), error) {
	record, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	// Ownership is checked after existence, so a foreign id is rejected as
	// unauthorized rather than unknown.
	if record.OwnerID != requesterID {
		return nil, nil, ErrNotOwner
	}

	encrypted, err := s.store.Read(s.store.EncryptedPath(fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to read encrypted blob: %w", err)
	}

	archive, err := s.blobs.Decrypt(encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt blob: %w", err)
	}

	// Transient plaintext gets its own random name so concurrent downloads
	// of the same file cannot collide.
	tempPath := s.store.ArchivePath(uuid.NewString())
	if err := s.store.Write(tempPath, archive); err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := s.store.Remove(tempPath); err != nil {
			slog.Error("failed to remove transient archive", "path", tempPath, "error", err)
		}
	}

	// Verify the stored blob against the hash recorded at intake. The hash
	// covers the ciphertext, so it is recomputed over the encrypted source.
	sum := sha256.Sum256(encrypted)
	if hex.EncodeToString(sum[:]) != record.ContentHash {
		release()
		slog.Error("content hash mismatch", "file_id", fileID, "expected", record.ContentHash)
		return nil, nil, ErrIntegrity
	}

	return &DownloadResult{Path: tempPath, DisplayName: record.DisplayName}, release, nil
}

// List returns the requester's stored files.
func (s *VaultService) List(ctx context.Context, requesterID string) ([]FileInfo, error) {
	records, err := s.files.ListByOwner(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	infos := make([]FileInfo, 0, len(records))
	for _, r := range records {
		infos = append(infos, FileInfo{
			ID:          r.ID,
			DisplayName: r.DisplayName,
			FileType:    string(r.FileType),
		})
	}
	return infos, nil
}

// Delete removes a stored file: the record first, so the id stops being
// addressable, then the encrypted blob.
func (s *VaultService) Delete(ctx context.Context, requesterID, fileID string) error {
	record, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return ErrNotFound
		}
		return err
	}
	if record.OwnerID != requesterID {
		return ErrNotOwner
	}

	if err := s.files.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}
	if err := s.store.Remove(s.store.EncryptedPath(fileID)); err != nil {
		return fmt.Errorf("failed to delete encrypted blob: %w", err)
	}

	slog.Info("file deleted", "file_id", fileID, "owner_id", requesterID)
	return nil
}

// Link associates a file with a job after verifying the requester owns both
// sides, and bumps the file's updated timestamp.
func (s *VaultService) Link(ctx context.Context, requesterID, fileID, jobID string) error {
	if err := s.authorizeLink(ctx, requesterID, fileID, jobID); err != nil {
		return err
	}
	if err := s.links.Link(ctx, fileID, jobID); err != nil {
		if errors.Is(err, database.ErrAlreadyLinked) {
			return ErrAlreadyLinked
		}
		return err
	}
	return s.files.Touch(ctx, fileID)
}

// Unlink removes a file-job association under the same ownership rules.
func (s *VaultService) Unlink(ctx context.Context, requesterID, fileID, jobID string) error {
	if err := s.authorizeLink(ctx, requesterID, fileID, jobID); err != nil {
		return err
	}
	if err := s.links.Unlink(ctx, fileID, jobID); err != nil {
		if errors.Is(err, database.ErrNotLinked) {
			return ErrNotLinked
		}
		return err
	}
	return s.files.Touch(ctx, fileID)
}

func (s *VaultService) authorizeLink(ctx context.Context, requesterID, fileID, jobID string) error {
	record, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return ErrNotFound
		}
		return err
	}
	if record.OwnerID != requesterID {
		return ErrNotOwner
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			return ErrJobNotFound
		}
		return err
	}
	if job.OwnerID != requesterID {
		return ErrNotOwner
	}
	return nil
}

// readBounded buffers the whole upload, rejecting empty input and anything
// over the size limit.
func (s *VaultService) readBounded(data io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(data, s.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload data: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyFile
	}
	if n > s.maxFileSize {
		return nil, ErrFileTooLarge
	}
	return buf.Bytes(), nil
}

// removeArtifacts deletes pipeline intermediates on the failure path.
func (s *VaultService) removeArtifacts(paths []string) {
	for _, p := range paths {
		if err := s.store.Remove(p); err != nil {
			slog.Error("failed to clean up pipeline artifact", "path", p, "error", err)
		}
	}
}

// buildArchive wraps content in a single-entry zip archive keyed by the
// sanitized display name. The archive layer lets the stored object travel
// as a generic blob and gives retrieval a second structural boundary
// independent of the encryption boundary.
func buildArchive(entryName string, content []byte) ([]byte, error) {
	if entryName == "" {
		entryName = "document.pdf"
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	f, err := w.CreateHeader(&zip.FileHeader{Name: entryName, Method: zip.Deflate})
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to create archive entry: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write archive entry: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseFileType parses the declared file type, case-insensitively.
func ParseFileType(raw string) (database.FileType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "resume":
		return database.FileTypeResume, nil
	case "coverletter":
		return database.FileTypeCoverLetter, nil
	default:
		return "", ErrInvalidFileType
	}
}

// illegalNameChars are stripped from client-supplied display names.
const illegalNameChars = `<>\/?*|`

// SanitizeDisplayName strips path and shell metacharacters from a
// client-supplied filename. The result is stored for display only; it is
// never used as an on-disk name.
func SanitizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(illegalNameChars, r) {
			return -1
		}
		return r
	}, name)
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

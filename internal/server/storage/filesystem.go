// Package storage owns the on-disk artifacts of the vault. Every upload
// passes through three artifacts named by one random identifier: a transient
// scrubbed PDF ({id}.pdf), a transient archive ({id}.zip), and the persisted
// encrypted blob ({id}.zip.enc). Only the last one outlives its request.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	pdfSuffix       = ".pdf"
	archiveSuffix   = ".zip"
	encryptedSuffix = ".zip.enc"
)

// Store is the artifact storage backend used by the pipelines.
type Store interface {
	EnsureDir() error
	PDFPath(id string) string
	ArchivePath(id string) string
	EncryptedPath(id string) string
	Write(path string, data []byte) error
	Read(path string) ([]byte, error)
	Remove(path string) error
}

// FileSystemStore keeps vault artifacts in a single local directory.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// PDFPath is the transient scrubbed-PDF artifact for an upload.
func (fs *FileSystemStore) PDFPath(id string) string {
	return filepath.Join(fs.basePath, id+pdfSuffix)
}

// ArchivePath is the transient archive artifact for an upload or download.
func (fs *FileSystemStore) ArchivePath(id string) string {
	return filepath.Join(fs.basePath, id+archiveSuffix)
}

// EncryptedPath is the persisted encrypted blob for a stored file.
func (fs *FileSystemStore) EncryptedPath(id string) string {
	return filepath.Join(fs.basePath, id+encryptedSuffix)
}

// Write creates or replaces an artifact, readable by the server only.
func (fs *FileSystemStore) Write(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return nil
}

// Read returns an artifact's bytes. The raw error is preserved so callers
// can distinguish a missing artifact from an IO failure.
func (fs *FileSystemStore) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Remove deletes an artifact; an already-absent artifact is not an error.
func (fs *FileSystemStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact %s: %w", path, err)
	}
	return nil
}

// transientPaths returns every .pdf and .zip artifact in the store older
// than the grace period. These only exist mid-pipeline; anything stale is a
// crash leftover.
func (fs *FileSystemStore) transientPaths(olderThan func(path string) bool) ([]string, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var stale []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, pdfSuffix) && !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		if strings.HasSuffix(name, encryptedSuffix) {
			continue
		}
		path := filepath.Join(fs.basePath, name)
		if olderThan(path) {
			stale = append(stale, path)
		}
	}
	return stale, nil
}

// encryptedIDs returns the id of every persisted blob in the store.
func (fs *FileSystemStore) encryptedIDs() ([]string, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), encryptedSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), encryptedSuffix))
	}
	return ids, nil
}

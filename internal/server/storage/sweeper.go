package storage

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// FileIndex lists the ids of every file record, so the sweeper can tell an
// orphaned blob from a live one.
type FileIndex interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// Sweeper periodically removes crash leftovers: transient pipeline
// artifacts that outlived their request and encrypted blobs with no
// matching record. The pipelines clean up after themselves on every exit
// path; the sweeper is the backstop behind that guarantee.
type Sweeper struct {
	index    FileIndex
	store    *FileSystemStore
	interval time.Duration
	grace    time.Duration
	done     chan struct{}
}

// NewSweeper creates a sweeper. Artifacts younger than grace are never
// touched, so in-flight pipelines are safe.
func NewSweeper(index FileIndex, store *FileSystemStore, interval, grace time.Duration) *Sweeper {
	return &Sweeper{
		index:    index,
		store:    store,
		interval: interval,
		grace:    grace,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("artifact sweeper started", "interval", s.interval, "grace", s.grace)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Run once immediately on start
		s.runSweep(ctx)

		for {
			select {
			case <-ticker.C:
				s.runSweep(ctx)
			case <-ctx.Done():
				slog.Info("artifact sweeper stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *Sweeper) Wait() {
	<-s.done
}

func (s *Sweeper) runSweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.grace)

	stale, err := s.store.transientPaths(func(path string) bool {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		return info.ModTime().Before(cutoff)
	})
	if err != nil {
		slog.Error("failed to scan for stale artifacts", "error", err)
		return
	}

	var removed int
	for _, path := range stale {
		if err := s.store.Remove(path); err != nil {
			slog.Error("failed to remove stale artifact", "path", path, "error", err)
			continue
		}
		removed++
		slog.Warn("removed stale transient artifact", "path", path)
	}

	orphans := s.sweepOrphanBlobs(ctx, cutoff)

	if removed > 0 || orphans > 0 {
		slog.Info("sweep cycle complete", "stale_transients", removed, "orphan_blobs", orphans)
	}
}

// sweepOrphanBlobs removes encrypted blobs that have no file record. A blob
// inside the grace window may belong to an intake that has not persisted
// its row yet, so it is left alone.
func (s *Sweeper) sweepOrphanBlobs(ctx context.Context, cutoff time.Time) int {
	ids, err := s.store.encryptedIDs()
	if err != nil {
		slog.Error("failed to list encrypted blobs", "error", err)
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	known, err := s.index.ListIDs(ctx)
	if err != nil {
		slog.Error("failed to list file records", "error", err)
		return 0
	}
	live := make(map[string]bool, len(known))
	for _, id := range known {
		live[id] = true
	}

	var removed int
	for _, id := range ids {
		if live[id] {
			continue
		}
		path := s.store.EncryptedPath(id)
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := s.store.Remove(path); err != nil {
			slog.Error("failed to remove orphaned blob", "path", path, "error", err)
			continue
		}
		removed++
		slog.Warn("removed orphaned encrypted blob", "id", id)
	}
	return removed
}

package backup

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/klauern/hubsync/internal/model"
)

// CleanupOptions configures backup cleanup behavior
type CleanupOptions struct {
	// MaxBackups limits the number of backups to keep per source file (0 = unlimited)
	MaxBackups int

	// MaxAge is the maximum age of backups to keep (0 = unlimited)
	MaxAge time.Duration

	// KeepAtLeastOne ensures at least one backup is kept per source file
	KeepAtLeastOne bool

	// Kind filters cleanup to one artifact kind (empty = all kinds)
	Kind model.Kind

	// DryRun previews what would be deleted without actually deleting
	DryRun bool
}

// DefaultCleanupOptions returns sensible defaults for cleanup
func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{
		MaxBackups:     10,                  // Keep last 10 backups per file
		MaxAge:         30 * 24 * time.Hour, // Keep backups for 30 days
		KeepAtLeastOne: true,
	}
}

// Cleanup removes old backups and returns the ids removed, or the ids that
// would be removed in dry-run mode.
func (s *Store) Cleanup(opts CleanupOptions) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}

	groups := make(map[string][]Metadata)
	var order []string
	for _, b := range index.sorted(func(b Metadata) bool {
		return opts.Kind == "" || b.Kind == opts.Kind
	}) {
		key := string(b.Kind) + ":" + b.Source
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], b)
	}

	var toDelete []string
	now := s.now()
	for _, key := range order {
		var doomed []string
		for i, b := range groups[key] {
			if (opts.MaxAge > 0 && now.Sub(b.CreatedAt) > opts.MaxAge) ||
				(opts.MaxBackups > 0 && i >= opts.MaxBackups) {
				doomed = append(doomed, b.ID)
			}
		}
		// Groups are newest first, so sparing doomed[0] keeps the newest backup.
		if opts.KeepAtLeastOne && len(doomed) == len(groups[key]) && len(doomed) > 0 {
			doomed = doomed[1:]
		}
		toDelete = append(toDelete, doomed...)
	}

	if opts.DryRun || len(toDelete) == 0 {
		return toDelete, nil
	}

	var deleted []string
	for _, id := range toDelete {
		if err := s.deleteLocked(index, id); err != nil {
			_ = s.saveIndex(index)
			return deleted, fmt.Errorf("failed to delete backup %q: %w", id, err)
		}
		deleted = append(deleted, id)
	}
	return deleted, s.saveIndex(index)
}

// Stats contains statistics about backups
type Stats struct {
	TotalBackups int                `json:"totalBackups" yaml:"totalBackups"`
	TotalSize    int64              `json:"totalSize" yaml:"totalSize"`
	ByKind       map[model.Kind]int `json:"byKind" yaml:"byKind"`
	OldestBackup time.Time          `json:"oldestBackup" yaml:"oldestBackup"`
	NewestBackup time.Time          `json:"newestBackup" yaml:"newestBackup"`
}

// Stats summarizes the store.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to load backup index: %w", err)
	}

	stats := Stats{
		TotalBackups: len(index.Backups),
		ByKind:       make(map[model.Kind]int),
	}
	for _, b := range index.Backups {
		stats.TotalSize += b.Size
		stats.ByKind[b.Kind]++
		if stats.OldestBackup.IsZero() || b.CreatedAt.Before(stats.OldestBackup) {
			stats.OldestBackup = b.CreatedAt
		}
		if b.CreatedAt.After(stats.NewestBackup) {
			stats.NewestBackup = b.CreatedAt
		}
	}
	return stats, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

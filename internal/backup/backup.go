// Package backup keeps copies of local artifact files before a pull
// overwrites unpushed edits.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/klauern/hubsync/internal/model"
)

const (
	// DirPerm is the permission for backup directories (rwxr-x---)
	DirPerm = 0o750
	// FilePerm is the permission for backup files (rw-r-----)
	FilePerm = 0o640
)

// Options describes the file being backed up.
type Options struct {
	Kind        model.Kind        // Artifact kind
	Source      string            // Path relative to the kind directory
	Description string            // Human-readable description
	Metadata    map[string]string // Additional metadata
}

// Store is a directory of backups with a JSON index.
type Store struct {
	fs  billy.Filesystem
	mu  sync.Mutex
	now func() time.Time
}

// New creates a store on fs.
func New(fs billy.Filesystem) *Store {
	return &Store{fs: fs, now: time.Now}
}

// Open creates a store in dir on the OS filesystem.
func Open(dir string) *Store {
	return New(osfs.New(dir))
}

// WithClock overrides the creation time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Create saves content as a backup of opts.Source.
func (s *Store) Create(content []byte, opts Options) (Metadata, error) {
	if opts.Kind == "" || opts.Source == "" {
		return Metadata{}, fmt.Errorf("backup needs a kind and a source path")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to load backup index: %w", err)
	}

	hashStr := hashOf(content)
	created := s.now()
	id := created.Format("20060102-150405.000-") + hashStr[:8]

	dir := opts.Kind.Dir()
	if err := s.fs.MkdirAll(dir, DirPerm); err != nil {
		return Metadata{}, fmt.Errorf("failed to create backup directory: %w", err)
	}
	backupPath := path.Join(dir, id+path.Ext(opts.Source))
	if err := util.WriteFile(s.fs, backupPath, content, FilePerm); err != nil {
		return Metadata{}, fmt.Errorf("failed to write backup file: %w", err)
	}

	metadata := Metadata{
		ID:          id,
		Kind:        opts.Kind,
		Source:      opts.Source,
		BackupPath:  backupPath,
		CreatedAt:   created,
		Hash:        hashStr,
		Size:        int64(len(content)),
		Description: opts.Description,
		Metadata:    opts.Metadata,
	}
	index.Backups[id] = metadata
	if err := s.saveIndex(index); err != nil {
		return Metadata{}, fmt.Errorf("failed to add backup to index: %w", err)
	}
	return metadata, nil
}

// Restore writes a backup back to its source path inside target, the
// directory of the backup's kind.
func (s *Store) Restore(id string, target billy.Filesystem) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadata, content, err := s.readVerified(id)
	if err != nil {
		return Metadata{}, err
	}
	if dir := path.Dir(metadata.Source); dir != "." {
		if err := target.MkdirAll(dir, DirPerm); err != nil {
			return Metadata{}, fmt.Errorf("failed to create target directory: %w", err)
		}
	}
	if err := util.WriteFile(target, metadata.Source, content, 0o644); err != nil {
		return Metadata{}, fmt.Errorf("failed to write target file: %w", err)
	}
	return metadata, nil
}

// Get returns the metadata of a backup.
func (s *Store) Get(id string) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to load backup index: %w", err)
	}
	metadata, ok := index.Backups[id]
	if !ok {
		return Metadata{}, fmt.Errorf("backup %q not found", id)
	}
	return metadata, nil
}

// List returns all backups, newest first, optionally filtered by kind.
func (s *Store) List(kind model.Kind) ([]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}
	return index.sorted(func(b Metadata) bool {
		return kind == "" || b.Kind == kind
	}), nil
}

// History returns the backups of one source file, newest first.
func (s *Store) History(kind model.Kind, source string) ([]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to load backup index: %w", err)
	}
	return index.sorted(func(b Metadata) bool {
		return b.Kind == kind && b.Source == source
	}), nil
}

// Delete removes a backup file and its index entry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return fmt.Errorf("failed to load backup index: %w", err)
	}
	if err := s.deleteLocked(index, id); err != nil {
		return err
	}
	return s.saveIndex(index)
}

// Verify checks that a backup file is intact and matches its hash.
func (s *Store) Verify(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _, err := s.readVerified(id)
	return err
}

func (s *Store) deleteLocked(index *Index, id string) error {
	metadata, ok := index.Backups[id]
	if !ok {
		return fmt.Errorf("backup %q not found", id)
	}
	if err := s.fs.Remove(metadata.BackupPath); err != nil && !isNotExist(err) {
		return fmt.Errorf("failed to delete backup file: %w", err)
	}
	delete(index.Backups, id)
	return nil
}

// readVerified loads a backup's content and checks its hash. Callers hold s.mu.
func (s *Store) readVerified(id string) (Metadata, []byte, error) {
	index, err := s.loadIndex()
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("failed to load backup index: %w", err)
	}
	metadata, ok := index.Backups[id]
	if !ok {
		return Metadata{}, nil, fmt.Errorf("backup %q not found", id)
	}

	content, err := util.ReadFile(s.fs, metadata.BackupPath)
	if err != nil {
		if isNotExist(err) {
			return Metadata{}, nil, fmt.Errorf("backup file missing: %s", metadata.BackupPath)
		}
		return Metadata{}, nil, fmt.Errorf("failed to read backup file: %w", err)
	}
	if got := hashOf(content); got != metadata.Hash {
		return Metadata{}, nil, fmt.Errorf("backup file corrupted: hash mismatch (expected %s, got %s)", metadata.Hash, got)
	}
	return metadata, content, nil
}

func hashOf(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

package backup

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5/util"

	"github.com/klauern/hubsync/internal/model"
)

// Metadata describes a single backup.
type Metadata struct {
	// ID is timestamp-based and unique per store.
	ID   string     `json:"id" yaml:"id"`
	Kind model.Kind `json:"kind" yaml:"kind"`
	// Source is the file path relative to the kind directory.
	Source string `json:"source" yaml:"source"`
	// BackupPath is the path inside the backup store.
	BackupPath string    `json:"backup_path" yaml:"backupPath"`
	CreatedAt  time.Time `json:"created_at" yaml:"createdAt"`
	// Hash is the SHA256 of the content.
	Hash        string            `json:"hash" yaml:"hash"`
	Size        int64             `json:"size" yaml:"size"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Index maintains an index of all backups.
type Index struct {
	Version string              `json:"version"`
	Updated time.Time           `json:"updated"`
	Backups map[string]Metadata `json:"backups"` // Key: backup ID
}

const (
	// IndexVersion is the current version of the backup index format
	IndexVersion = "1.0"
	// IndexFilename is the name of the index file
	IndexFilename = "index.json"
)

// loadIndex reads the index, returning an empty one when none exists yet.
// Callers hold s.mu.
func (s *Store) loadIndex() (*Index, error) {
	data, err := util.ReadFile(s.fs, IndexFilename)
	if isNotExist(err) {
		return &Index{
			Version: IndexVersion,
			Updated: s.now(),
			Backups: make(map[string]Metadata),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse index file: %w", err)
	}
	if index.Backups == nil {
		index.Backups = make(map[string]Metadata)
	}
	return &index, nil
}

// saveIndex writes the index. Callers hold s.mu.
func (s *Store) saveIndex(index *Index) error {
	index.Updated = s.now()

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := util.WriteFile(s.fs, IndexFilename, data, FilePerm); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}
	return nil
}

// sorted returns the backups of the index matching keep, newest first.
func (idx *Index) sorted(keep func(Metadata) bool) []Metadata {
	backups := make([]Metadata, 0, len(idx.Backups))
	for _, b := range idx.Backups {
		if keep == nil || keep(b) {
			backups = append(backups, b)
		}
	}
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].ID > backups[j].ID
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups
}

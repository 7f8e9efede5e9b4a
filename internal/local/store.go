// Package local stores artifacts as JSON files in a working directory.
package local

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/klauern/hubsync/internal/model"
)

const (
	// DefaultExtension is used for artifact files.
	DefaultExtension = ".json"
	// ConflictSuffix is appended to the file holding the remote side of a conflict.
	ConflictSuffix = ".conflict"
)

// DefaultPruneFields are server-only fields dropped before writing to disk.
var DefaultPruneFields = []string{model.FieldLinks}

// Options configures a Store.
type Options struct {
	// Extension of artifact files. Defaults to DefaultExtension.
	Extension string
	// PathBased stores items under their hierarchical path instead of their id.
	PathBased bool
	// PruneFields are removed before saving. Nil uses DefaultPruneFields.
	PruneFields []string
}

// Store reads and writes artifacts of one kind below the root of fs.
// Names are slash separated paths relative to that root, without extension.
type Store struct {
	fs   billy.Filesystem
	opts Options
}

// New creates a store rooted at fs.
func New(fsys billy.Filesystem, opts Options) *Store {
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if !strings.HasPrefix(opts.Extension, ".") {
		opts.Extension = "." + opts.Extension
	}
	if opts.PruneFields == nil {
		opts.PruneFields = DefaultPruneFields
	}
	return &Store{fs: fsys, opts: opts}
}

// Filesystem returns the working directory.
func (s *Store) Filesystem() billy.Filesystem {
	return s.fs
}

// Extension returns the artifact file extension.
func (s *Store) Extension() string {
	return s.opts.Extension
}

// PathBased reports whether files are laid out by hierarchical path.
func (s *Store) PathBased() bool {
	return s.opts.PathBased
}

// ListNames returns the names of every artifact file, sorted. Dot files and
// dot directories are skipped.
func (s *Store) ListNames() ([]string, error) {
	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, s.NameOf(f))
	}
	return names, nil
}

// Get reads the artifact stored under name.
func (s *Store) Get(name string) (model.Artifact, error) {
	p := s.PathOf(name)
	data, err := util.ReadFile(s.fs, p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	item, err := model.ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p, err)
	}
	return item, nil
}

// Save writes item to its file, creating parent directories, and returns the
// relative path written. Server-only fields are pruned first.
func (s *Store) Save(item model.Artifact) (string, error) {
	p := s.ItemPath(item)
	if p == "" {
		return "", fmt.Errorf("item has neither id nor path")
	}
	if err := s.write(p, item.Without(s.opts.PruneFields...)); err != nil {
		return "", err
	}
	return p, nil
}

// SaveConflict writes the remote side of a conflict next to the item's file.
func (s *Store) SaveConflict(item model.Artifact) (string, error) {
	p := s.ItemPath(item)
	if p == "" {
		return "", fmt.Errorf("item has neither id nor path")
	}
	p += ConflictSuffix
	if err := s.write(p, item); err != nil {
		return "", err
	}
	return p, nil
}

// ItemPath returns the relative file path of item: its hierarchical path for
// path-based stores, its id otherwise.
func (s *Store) ItemPath(item model.Artifact) string {
	if s.opts.PathBased {
		if p := strings.Trim(item.Path(), "/"); p != "" {
			return p + s.opts.Extension
		}
	}
	if id := item.ID(); id != "" {
		return id + s.opts.Extension
	}
	return ""
}

// NameOf converts a relative file path to a name.
func (s *Store) NameOf(p string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path.Clean("/"+p), "/"), s.opts.Extension)
}

// PathOf converts a name to a relative file path.
func (s *Store) PathOf(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/") + s.opts.Extension
}

// Exists reports whether a relative path exists.
func (s *Store) Exists(p string) bool {
	_, err := s.fs.Stat(p)
	return err == nil
}

// Remove deletes the file at a relative path. Missing files are not an error.
func (s *Store) Remove(p string) error {
	if err := s.fs.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", p, err)
	}
	return nil
}

// LocalFilePathMap maps artifact ids to their relative file paths. It is only
// built for path-based stores, where a rename on the hub moves the file.
// Unreadable files are skipped.
func (s *Store) LocalFilePathMap() (map[string]string, error) {
	if !s.opts.PathBased {
		return nil, nil
	}
	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(files))
	for _, f := range files {
		item, err := s.Get(s.NameOf(f))
		if err != nil {
			continue
		}
		if id := item.ID(); id != "" {
			out[id] = f
		}
	}
	return out, nil
}

func (s *Store) listFiles() ([]string, error) {
	var files []string
	err := util.Walk(s.fs, "", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		name := info.Name()
		if p != "" && strings.HasPrefix(name, ".") {
			if info.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if info.IsDir() || path.Ext(name) != s.opts.Extension {
			return nil
		}
		files = append(files, strings.TrimPrefix(path.Clean("/"+p), "/"))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.fs.Root(), err)
	}
	sort.Strings(files)
	return files, nil
}

func (s *Store) write(p string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", p, err)
	}
	if dir := path.Dir(p); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(s.fs, p, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return nil
}

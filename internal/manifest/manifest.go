// Package manifest records which artifacts an operation touched and lets later
// operations select artifacts from such a record.
//
// A manifest is a JSON document keyed by artifact kind. Pages are scoped to
// their site, so the "pages" section of a document lives under an entry of the
// "sites" section. A store holds up to three documents: the read manifest
// selecting artifacts, the write manifest accumulating results, and the
// deletions manifest listing artifacts removed on one side of a compare.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/model"
)

// ErrManifestNotFound is returned when a read manifest reference resolves to nothing.
var ErrManifestNotFound = errors.New("manifest not found")

const (
	// DefaultDir holds manifests inside the working directory.
	DefaultDir = "manifests"
	// DefaultExtension is appended to manifest names without one.
	DefaultExtension = ".json"
	// RemotePrefix marks a reference fetched from the content hub.
	RemotePrefix = "remote:"

	defaultSite = "default"
)

// Mode selects how a writing session merges into existing sections.
type Mode string

const (
	// ModeAppend merges new entries into the existing section.
	ModeAppend Mode = "append"
	// ModeReplace clears a section the first time it is written in a session.
	ModeReplace Mode = "replace"
)

// ParseMode parses "append" or "replace". The empty string means append.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAppend:
		return ModeAppend, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("unknown manifest mode: %q", s)
	}
}

// Fetcher loads a manifest stored on the content hub.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Item is the projection of an artifact kept in a manifest section.
type Item struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`

	// Sites only.
	ContextRoot string          `json:"contextRoot,omitempty"`
	Status      string          `json:"status,omitempty"`
	Pages       map[string]Item `json:"pages,omitempty"`

	// Placeholder entries only carry parent context for nested sections.
	Placeholder bool `json:"placeholder,omitempty"`
}

// ItemFrom projects an artifact for a section of the given kind.
func ItemFrom(kind model.Kind, a model.Artifact) Item {
	it := Item{ID: a.ID(), Name: a.Name(), Path: a.Path()}
	if kind == model.Sites {
		it.ContextRoot = a.String(model.FieldContextRoot)
		it.Status = string(a.Status())
	}
	return it
}

// Key returns the section key of an item.
func Key(kind model.Kind, it Item) string {
	if kind.KeyedByPath() && it.Path != "" {
		return it.Path
	}
	return it.ID
}

type document map[model.Kind]map[string]Item

// Options configures a Store.
type Options struct {
	// Dir resolves bare manifest names. Defaults to DefaultDir.
	Dir string
	// Extension is appended to bare names. Defaults to DefaultExtension.
	Extension string
	// Mode applies to the write and deletions manifests.
	Mode Mode
	// Site selects the site whose pages are read and written.
	Site string
	// Fetcher resolves remote references.
	Fetcher Fetcher
	// Logger defaults to logging.Default().
	Logger *slog.Logger
}

// Store holds the manifests of one session.
type Store struct {
	mu     sync.Mutex
	fs     billy.Filesystem
	opts   Options
	logger *slog.Logger

	read      document
	write     document
	deletions document

	writePath     string
	deletionsPath string

	// sections already cleared in replace mode, per document
	cleared map[string]bool
}

// New creates a store resolving local references against fs.
func New(fs billy.Filesystem, opts Options) *Store {
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if !strings.HasPrefix(opts.Extension, ".") {
		opts.Extension = "." + opts.Extension
	}
	if opts.Mode == "" {
		opts.Mode = ModeAppend
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Store{
		fs:      fs,
		opts:    opts,
		logger:  opts.Logger,
		cleared: make(map[string]bool),
	}
}

// Initialize resolves and loads the three manifest references. Empty
// references are skipped. Write and deletions manifests that already exist are
// loaded so append mode extends them.
func (s *Store) Initialize(ctx context.Context, read, write, deletions string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if read != "" {
		data, err := s.resolve(ctx, read)
		if err != nil {
			return err
		}
		doc, err := decode(data)
		if err != nil {
			return fmt.Errorf("parsing read manifest %q: %w", read, err)
		}
		s.read = doc
	}

	if write != "" {
		s.writePath = s.localPath(write)
		s.write = s.loadExisting(s.writePath)
	}
	if deletions != "" {
		s.deletionsPath = s.localPath(deletions)
		s.deletions = s.loadExisting(s.deletionsPath)
	}
	return nil
}

// Active reports whether a read manifest selects artifacts.
func (s *Store) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read != nil
}

// Writing reports whether a write manifest was configured.
func (s *Store) Writing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write != nil
}

// Section returns a copy of the read manifest section for kind without
// placeholder entries, or nil when the read manifest has no such section.
func (s *Store) Section(kind model.Kind) map[string]Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.read == nil {
		return nil
	}
	var sec map[string]Item
	if kind == model.Pages {
		sec = s.pagesLocked(s.read, false)
	} else {
		sec = s.read[kind]
	}
	if sec == nil {
		return nil
	}

	out := make(map[string]Item, len(sec))
	for k, it := range sec {
		if it.Placeholder {
			continue
		}
		it.Pages = nil
		out[k] = it
	}
	return out
}

// UpdateSection records items in the write manifest.
func (s *Store) UpdateSection(kind model.Kind, items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.write == nil {
		return
	}
	s.updateLocked("write", s.write, kind, items)
}

// UpdateDeletionsSection records items in the deletions manifest.
func (s *Store) UpdateDeletionsSection(kind model.Kind, items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deletions == nil {
		return
	}
	s.updateLocked("deletions", s.deletions, kind, items)
}

// Save writes the write and deletions manifests. It returns the absolute path
// of the write manifest, or "" when none was configured.
func (s *Store) Save() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.deletions != nil {
		if err := s.writeDoc(s.deletionsPath, s.deletions); err != nil {
			errs = append(errs, err)
		}
	}
	if s.write == nil {
		return "", errors.Join(errs...)
	}
	if err := s.writeDoc(s.writePath, s.write); err != nil {
		errs = append(errs, err)
	}
	return filepath.Join(s.fs.Root(), filepath.FromSlash(s.writePath)), errors.Join(errs...)
}

func (s *Store) updateLocked(docName string, doc document, kind model.Kind, items []Item) {
	var sec map[string]Item
	if kind == model.Pages {
		sec = s.pagesLocked(doc, true)
	} else {
		sec = doc[kind]
		if sec == nil {
			sec = make(map[string]Item)
			doc[kind] = sec
		}
	}

	clearKey := docName + "/" + string(kind)
	if s.opts.Mode == ModeReplace && !s.cleared[clearKey] {
		for k, it := range sec {
			// Sites keep their nested pages; only explicit entries are replaced.
			if kind == model.Sites && len(it.Pages) > 0 {
				sec[k] = Item{ID: it.ID, Placeholder: true, Pages: it.Pages}
				continue
			}
			delete(sec, k)
		}
		s.cleared[clearKey] = true
	}

	for _, it := range items {
		key := Key(kind, it)
		if key == "" {
			continue
		}
		if kind == model.Sites {
			if existing, ok := sec[key]; ok {
				it.Pages = existing.Pages
			}
		}
		it.Placeholder = false
		sec[key] = it
	}
}

// pagesLocked resolves the pages map of the active site. With create set, a
// placeholder site and an empty pages map are added when missing.
func (s *Store) pagesLocked(doc document, create bool) map[string]Item {
	sites := doc[model.Sites]
	if sites == nil {
		if !create {
			return nil
		}
		sites = make(map[string]Item)
		doc[model.Sites] = sites
	}

	siteID := s.activeSite()
	site, ok := sites[siteID]
	if !ok {
		if !create {
			return nil
		}
		site = Item{ID: siteID, Placeholder: true}
	}
	if site.Pages == nil {
		if !create {
			return nil
		}
		site.Pages = make(map[string]Item)
	}
	sites[siteID] = site
	return site.Pages
}

func (s *Store) activeSite() string {
	if s.opts.Site != "" {
		return s.opts.Site
	}
	return defaultSite
}

func (s *Store) resolve(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, RemotePrefix) {
		if s.opts.Fetcher == nil {
			return nil, fmt.Errorf("%w: no remote to fetch %q from", ErrManifestNotFound, ref)
		}
		data, err := s.opts.Fetcher.Fetch(ctx, strings.TrimPrefix(ref, RemotePrefix))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrManifestNotFound, ref, err)
		}
		return data, nil
	}

	p := s.localPath(ref)
	data, err := util.ReadFile(s.fs, p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, p)
		}
		return nil, fmt.Errorf("reading manifest %s: %w", p, err)
	}
	return data, nil
}

// localPath maps a bare name to the manifest directory; references carrying a
// directory or an extension are used as given.
func (s *Store) localPath(ref string) string {
	ref = filepath.ToSlash(ref)
	if strings.Contains(ref, "/") || path.Ext(ref) != "" {
		return ref
	}
	return path.Join(s.opts.Dir, ref+s.opts.Extension)
}

func (s *Store) loadExisting(p string) document {
	data, err := util.ReadFile(s.fs, p)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read manifest, starting empty", logging.Path(p), logging.Err(err))
		}
		return make(document)
	}
	doc, err := decode(data)
	if err != nil {
		s.logger.Warn("corrupt manifest, starting empty", logging.Path(p), logging.Err(err))
		return make(document)
	}
	return doc
}

func (s *Store) writeDoc(p string, doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if dir := path.Dir(p); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating manifest directory: %w", err)
		}
	}
	if err := util.WriteFile(s.fs, p, append(data, '\n'), 0o644); err != nil {
		s.logger.Error("failed to write manifest", logging.Path(p), logging.Err(err))
		return fmt.Errorf("writing manifest %s: %w", p, err)
	}
	return nil
}

func decode(data []byte) (document, error) {
	doc := make(document)
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// HasSection reports whether the read manifest has a section for kind.
func (s *Store) HasSection(kind model.Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.read == nil {
		return false
	}
	if kind == model.Pages {
		return s.pagesLocked(s.read, false) != nil
	}
	_, ok := s.read[kind]
	return ok
}

// Names returns the sorted keys of the read manifest section for kind, or nil
// when the section is absent.
func (s *Store) Names(kind model.Kind) []string {
	sec := s.Section(kind)
	if sec == nil {
		return nil
	}
	names := make([]string, 0, len(sec))
	for k := range sec {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

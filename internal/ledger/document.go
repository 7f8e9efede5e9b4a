// Package ledger tracks what was last synchronized for every artifact in a
// working directory.
//
// A working directory is the directory holding the files of one artifact kind;
// the hubsync CLI opens one per kind directory of the workspace, so a
// workspace carries one ledger per kind. A ledger document is a single JSON
// file at the root of its working directory. It is partitioned by tenant;
// every partition maps artifact ids to the content hash, remote revision and
// local modification time recorded at the last successful push or pull, plus
// the watermarks bounding "modified since" queries. One Document per working
// directory is shared by every operation in the process.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gofrs/flock"

	"github.com/klauern/hubsync/internal/logging"
)

const (
	// DefaultFilename is the ledger file written at the root of a working directory.
	DefaultFilename = ".hubsync-hashes"
	// LegacyFilename is migrated to DefaultFilename on first read.
	LegacyFilename = ".hashes"

	// DefaultFlushCount is the number of mutations buffered before a write.
	DefaultFlushCount = 50
	// DefaultFlushInterval is the delay in milliseconds before buffered mutations are written.
	DefaultFlushInterval = 2000

	// Immediate disables write coalescing when used as a flush count or interval.
	Immediate = -1

	defaultTenant = "default"
)

// Options configures how a ledger document is persisted.
type Options struct {
	// Filename of the ledger inside the working directory.
	Filename string
	// FlushCount writes the document after this many mutations. Immediate writes every time.
	FlushCount int
	// FlushInterval writes buffered mutations after this many milliseconds. Immediate writes every time.
	FlushInterval int
	// LockFile guards writes with an OS file lock. Only meaningful on OS-backed filesystems.
	LockFile bool
	// Logger receives load and write failures. Defaults to logging.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the coalescing defaults used by the CLI.
func DefaultOptions() Options {
	return Options{
		Filename:      DefaultFilename,
		FlushCount:    DefaultFlushCount,
		FlushInterval: DefaultFlushInterval,
	}
}

func (o Options) immediate() bool {
	return o.FlushCount == Immediate || o.FlushInterval == Immediate
}

// Document is the in-memory ledger of one working directory. It is safe for
// concurrent use; memory is authoritative and the file is a full overwrite of it.
type Document struct {
	mu      sync.Mutex
	fs      billy.Filesystem
	opts    Options
	logger  *slog.Logger
	lock    *flock.Flock
	tenants map[string]*tenant
	pending int
	dirty   bool
	timer   *time.Timer
	closed  bool
}

// Registry hands out one shared Document per working directory.
type Registry struct {
	mu   sync.Mutex
	docs map[any]*Document
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{docs: make(map[any]*Document)}
}

type rootKey struct {
	root, filename string
}

// Open returns the document for fs, loading it from disk the first time.
// OS-backed working directories are keyed by root path so separate billy
// instances over the same directory share a document.
func (r *Registry) Open(fs billy.Filesystem, opts Options) *Document {
	if opts.Filename == "" {
		opts.Filename = DefaultFilename
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	var key any = fs
	if opts.LockFile {
		key = rootKey{root: fs.Root(), filename: opts.Filename}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.docs[key]; ok {
		return d
	}

	d := &Document{
		fs:      fs,
		opts:    opts,
		logger:  opts.Logger.With(logging.Path(path.Join(fs.Root(), opts.Filename))),
		tenants: make(map[string]*tenant),
	}
	if opts.LockFile {
		d.lock = flock.New(filepath.Join(fs.Root(), opts.Filename+".lock"))
	}
	d.load()
	r.docs[key] = d
	return d
}

// Close flushes and closes every document opened through the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, d := range r.docs {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.docs, key)
	}
	return errors.Join(errs...)
}

// Tenant returns the ledger partition for a tenant. An explicit tenant learns
// baseURL; without one, the tenant that previously learned baseURL is used,
// falling back to the normalized URL itself.
func (d *Document) Tenant(name, baseURL string) *Ledger {
	url := normalizeURL(baseURL)

	d.mu.Lock()
	defer d.mu.Unlock()

	key := name
	if key == "" {
		key = d.tenantForURL(url)
	}

	t := d.tenantLocked(key)
	if name != "" && url != "" && !t.hasURL(url) {
		t.BaseURLs = append(t.BaseURLs, url)
		d.markDirtyLocked()
	}
	return &Ledger{doc: d, tenant: key}
}

// Tenants returns the tenant keys present in the document.
func (d *Document) Tenants() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([]string, 0, len(d.tenants))
	for k := range d.tenants {
		keys = append(keys, k)
	}
	return keys
}

// Path returns the ledger file location inside the working directory.
func (d *Document) Path() string {
	return d.opts.Filename
}

// Flush writes pending changes to disk. Write failures are logged and returned;
// the in-memory state is unaffected.
func (d *Document) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushLocked()
}

// Close stops the coalescing timer and writes any pending changes.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.flushLocked()
}

func (d *Document) tenantForURL(url string) string {
	if url == "" {
		return defaultTenant
	}
	for key, t := range d.tenants {
		if t.hasURL(url) {
			return key
		}
	}
	return url
}

func (d *Document) tenantLocked(key string) *tenant {
	t, ok := d.tenants[key]
	if !ok {
		t = newTenant()
		d.tenants[key] = t
	}
	return t
}

// markDirtyLocked records a mutation and applies the coalescing policy.
func (d *Document) markDirtyLocked() {
	d.dirty = true
	d.pending++

	switch {
	case d.closed, d.opts.immediate():
		_ = d.flushLocked()
	case d.opts.FlushCount > 0 && d.pending >= d.opts.FlushCount:
		_ = d.flushLocked()
	case d.timer == nil:
		interval := d.opts.FlushInterval
		if interval <= 0 {
			interval = DefaultFlushInterval
		}
		d.timer = time.AfterFunc(time.Duration(interval)*time.Millisecond, func() {
			_ = d.Flush()
		})
	}
}

func (d *Document) flushLocked() error {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if !d.dirty {
		return nil
	}

	data, err := json.MarshalIndent(d.tenants, "", "  ")
	if err != nil {
		d.logger.Error("failed to encode ledger", logging.Err(err))
		return fmt.Errorf("encoding ledger: %w", err)
	}

	if d.lock != nil {
		if err := d.lock.Lock(); err != nil {
			d.logger.Warn("failed to acquire ledger lock", logging.Err(err))
		} else {
			defer func() { _ = d.lock.Unlock() }()
		}
	}

	if err := d.writeAtomic(data); err != nil {
		d.logger.Error("failed to write ledger", logging.Err(err))
		return err
	}

	d.dirty = false
	d.pending = 0
	return nil
}

// writeAtomic writes to a temp file next to the ledger and renames it into place
// so readers never observe a partial document.
func (d *Document) writeAtomic(data []byte) error {
	tmp, err := util.TempFile(d.fs, ".", d.opts.Filename+".tmp-")
	if err != nil {
		return fmt.Errorf("creating temp ledger: %w", err)
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = d.fs.Remove(name)
		return fmt.Errorf("writing temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = d.fs.Remove(name)
		return fmt.Errorf("closing temp ledger: %w", err)
	}
	if err := d.fs.Rename(name, d.opts.Filename); err != nil {
		_ = d.fs.Remove(name)
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}

// load reads the ledger file, migrating the legacy filename when only it exists.
// Unreadable or corrupt files leave the document empty.
func (d *Document) load() {
	data, err := util.ReadFile(d.fs, d.opts.Filename)
	migrated := false
	if os.IsNotExist(err) && d.opts.Filename == DefaultFilename {
		data, err = util.ReadFile(d.fs, LegacyFilename)
		migrated = err == nil
	}
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Warn("failed to read ledger, starting empty", logging.Err(err))
		}
		return
	}

	tenants := make(map[string]*tenant)
	if err := json.Unmarshal(data, &tenants); err != nil {
		d.logger.Warn("corrupt ledger, starting empty", logging.Err(err))
		return
	}
	for k, t := range tenants {
		if t == nil {
			tenants[k] = newTenant()
		}
	}
	d.tenants = tenants

	if migrated {
		d.logger.Info("migrating legacy ledger", logging.Path(LegacyFilename))
		d.dirty = true
		if err := d.flushLocked(); err == nil {
			_ = d.fs.Remove(LegacyFilename)
		}
	}
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(u)), "/")
}

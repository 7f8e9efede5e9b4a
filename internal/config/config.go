// Package config provides configuration management for hubsync.
// It supports YAML and TOML configuration files, environment variables, and sensible defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/hubsync/internal/backup"
	"github.com/klauern/hubsync/internal/ledger"
	"github.com/klauern/hubsync/internal/manifest"
	"github.com/klauern/hubsync/internal/sync"
	"github.com/klauern/hubsync/internal/util"
	"github.com/klauern/hubsync/internal/validation"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "HUBSYNC_"

// Config represents the complete hubsync configuration.
type Config struct {
	// Server configures the content hub connection
	Server ServerConfig `yaml:"server" toml:"server"`

	// Workspace configures where artifacts live locally
	Workspace WorkspaceConfig `yaml:"workspace" toml:"workspace"`

	// Sync configures default synchronization behavior
	Sync SyncConfig `yaml:"sync" toml:"sync"`

	// Ledger configures change tracking persistence
	Ledger LedgerConfig `yaml:"ledger" toml:"ledger"`

	// Manifest configures manifest resolution
	Manifest ManifestConfig `yaml:"manifest" toml:"manifest"`

	// Backup configures copies of local edits replaced by pulls
	Backup BackupConfig `yaml:"backup" toml:"backup"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output" toml:"output"`
}

// ServerConfig holds content hub connection settings.
type ServerConfig struct {
	// URL is the base URL of the content hub
	URL string `yaml:"url" toml:"url"`
	// Tenant selects the ledger partition and is sent with every request
	Tenant string `yaml:"tenant,omitempty" toml:"tenant"`
	// Token is sent as a bearer token
	Token string `yaml:"token,omitempty" toml:"token"`
	// Timeout bounds each request
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// WorkspaceConfig holds the local working directory.
type WorkspaceConfig struct {
	// Root holds one directory per artifact kind
	Root string `yaml:"root" toml:"root"`
}

// SyncConfig holds synchronization settings.
type SyncConfig struct {
	// Concurrency bounds in-flight requests per operation
	Concurrency int `yaml:"concurrency" toml:"concurrency"`
	// PageSize is the page size requested from list endpoints
	PageSize int `yaml:"page_size" toml:"page_size"`
	// RewriteOnPush saves the server response over the local file
	RewriteOnPush bool `yaml:"rewrite_on_push" toml:"rewrite_on_push"`
	// SaveConflicts writes the remote side of a conflict next to the local file
	SaveConflicts bool `yaml:"save_conflicts" toml:"save_conflicts"`
}

// LedgerConfig holds change tracking settings.
type LedgerConfig struct {
	// Filename is the ledger file at the workspace root
	Filename string `yaml:"filename" toml:"filename"`
	// FlushCount writes after this many mutations, -1 writes every time
	FlushCount int `yaml:"flush_count" toml:"flush_count"`
	// FlushInterval writes after this many milliseconds, -1 writes every time
	FlushInterval int `yaml:"flush_interval_ms" toml:"flush_interval_ms"`
}

// ManifestConfig holds manifest settings.
type ManifestConfig struct {
	// Dir resolves bare manifest names, relative to the workspace root
	Dir string `yaml:"dir" toml:"dir"`
	// Extension is appended to bare manifest names
	Extension string `yaml:"extension" toml:"extension"`
	// Mode is append or replace
	Mode string `yaml:"mode" toml:"mode"`
	// Site scopes page sections
	Site string `yaml:"site,omitempty" toml:"site"`
}

// BackupConfig holds backup settings.
type BackupConfig struct {
	// Enabled backs up locally modified files before a pull replaces them
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// Dir holds the backups, defaults to ~/.hubsync/backups
	Dir string `yaml:"dir,omitempty" toml:"dir"`
	// MaxBackups is kept per file by cleanup (0 = unlimited)
	MaxBackups int `yaml:"max_backups" toml:"max_backups"`
	// MaxAge is kept by cleanup (0 = unlimited)
	MaxAge time.Duration `yaml:"max_age" toml:"max_age"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Format is the default output format (table, json, yaml)
	Format string `yaml:"format" toml:"format"`
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color"`
	// Verbose enables verbose output
	Verbose bool `yaml:"verbose" toml:"verbose"`
}

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:     "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Workspace: WorkspaceConfig{
			Root: ".",
		},
		Sync: SyncConfig{
			Concurrency: sync.DefaultConcurrency,
			PageSize:    sync.DefaultPageSize,
		},
		Ledger: LedgerConfig{
			Filename:      ledger.DefaultFilename,
			FlushCount:    ledger.DefaultFlushCount,
			FlushInterval: ledger.DefaultFlushInterval,
		},
		Manifest: ManifestConfig{
			Dir:       manifest.DefaultDir,
			Extension: manifest.DefaultExtension,
			Mode:      string(manifest.ModeAppend),
		},
		Backup: BackupConfig{
			Enabled:    true,
			MaxBackups: backup.DefaultCleanupOptions().MaxBackups,
			MaxAge:     backup.DefaultCleanupOptions().MaxAge,
		},
		Output: OutputConfig{
			Format: FormatTable,
			Color:  "auto",
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// FilePath returns the path to the config file.
func FilePath() string {
	return filepath.Join(util.HubsyncHome(), configFileName)
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg, err := LoadFromPath(FilePath())
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.applyEnvironment()
		return cfg, nil
	}
	return cfg, err
}

// LoadFromPath loads configuration from a specific path. Files ending in
// .toml are parsed as TOML, everything else as YAML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path, as TOML when the
// path ends in .toml.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := c.Marshal(path)
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o600)
}

// Marshal encodes the configuration in the format implied by path.
func (c *Config) Marshal(path string) ([]byte, error) {
	if isTOML(path) {
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(c); err != nil {
			return nil, err
		}
		return []byte(b.String()), nil
	}
	return yaml.Marshal(c)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Server.Token != "" {
		out.Server.Token = "********"
	}
	return &out
}

// Validate checks every section and returns all failures at once.
func (c *Config) Validate() error {
	var errs validation.Errors
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(validation.ServerURL(c.Server.URL))
	if c.Server.Timeout < 0 {
		add(&validation.Error{Field: "server.timeout", Message: "must not be negative"})
	}
	if strings.TrimSpace(c.Workspace.Root) == "" {
		add(&validation.Error{Field: "workspace.root", Message: "is required"})
	}
	add(validation.Positive("sync.concurrency", c.Sync.Concurrency))
	add(validation.Positive("sync.page_size", c.Sync.PageSize))
	if strings.TrimSpace(c.Ledger.Filename) == "" || strings.ContainsAny(c.Ledger.Filename, `/\`) {
		add(&validation.Error{Field: "ledger.filename", Message: "must be a bare file name"})
	}
	add(validation.FlushSetting("ledger.flush_count", c.Ledger.FlushCount))
	add(validation.FlushSetting("ledger.flush_interval_ms", c.Ledger.FlushInterval))
	if _, err := manifest.ParseMode(c.Manifest.Mode); err != nil {
		add(&validation.Error{Field: "manifest.mode", Message: "must be append or replace", Err: err})
	}
	if c.Backup.MaxBackups < 0 {
		add(&validation.Error{Field: "backup.max_backups", Message: "must not be negative"})
	}
	if c.Backup.MaxAge < 0 {
		add(&validation.Error{Field: "backup.max_age", Message: "must not be negative"})
	}
	add(validation.OneOf("output.format", c.Output.Format, FormatTable, FormatJSON, FormatYAML))
	add(validation.OneOf("output.color", c.Output.Color, "auto", "always", "never"))

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// WorkspaceRoot returns the workspace root with ~ expanded.
func (c *Config) WorkspaceRoot() string {
	return util.ExpandPath(c.Workspace.Root)
}

// LedgerOptions converts the ledger section.
func (c *Config) LedgerOptions() ledger.Options {
	return ledger.Options{
		Filename:      c.Ledger.Filename,
		FlushCount:    c.Ledger.FlushCount,
		FlushInterval: c.Ledger.FlushInterval,
		LockFile:      true,
	}
}

// ManifestOptions converts the manifest section. The mode must already be valid.
func (c *Config) ManifestOptions() manifest.Options {
	mode, _ := manifest.ParseMode(c.Manifest.Mode)
	return manifest.Options{
		Dir:       c.Manifest.Dir,
		Extension: c.Manifest.Extension,
		Mode:      mode,
		Site:      c.Manifest.Site,
	}
}

// SyncOptions converts the sync section.
func (c *Config) SyncOptions() sync.Options {
	return sync.Options{
		Concurrency:   c.Sync.Concurrency,
		PageSize:      c.Sync.PageSize,
		RewriteOnPush: c.Sync.RewriteOnPush,
		SaveConflicts: c.Sync.SaveConflicts,
	}
}

// BackupDir returns the backup directory with ~ expanded.
func (c *Config) BackupDir() string {
	if c.Backup.Dir == "" {
		return util.BackupsPath()
	}
	return util.ExpandPath(c.Backup.Dir)
}

// CleanupOptions converts the backup section.
func (c *Config) CleanupOptions() backup.CleanupOptions {
	return backup.CleanupOptions{
		MaxBackups:     c.Backup.MaxBackups,
		MaxAge:         c.Backup.MaxAge,
		KeepAtLeastOne: true,
	}
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern HUBSYNC_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	// Server settings
	if v := os.Getenv("HUBSYNC_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("HUBSYNC_SERVER_TENANT"); v != "" {
		c.Server.Tenant = v
	}
	if v := os.Getenv("HUBSYNC_SERVER_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("HUBSYNC_SERVER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Server.Timeout = d
		}
	}

	if v := os.Getenv("HUBSYNC_WORKSPACE_ROOT"); v != "" {
		c.Workspace.Root = v
	}

	// Sync settings
	if v := os.Getenv("HUBSYNC_SYNC_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sync.Concurrency = n
		}
	}
	if v := os.Getenv("HUBSYNC_SYNC_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sync.PageSize = n
		}
	}
	if v := os.Getenv("HUBSYNC_SYNC_REWRITE_ON_PUSH"); v != "" {
		c.Sync.RewriteOnPush = parseBool(v)
	}
	if v := os.Getenv("HUBSYNC_SYNC_SAVE_CONFLICTS"); v != "" {
		c.Sync.SaveConflicts = parseBool(v)
	}

	// Ledger settings
	if v := os.Getenv("HUBSYNC_LEDGER_FILENAME"); v != "" {
		c.Ledger.Filename = v
	}
	if v := os.Getenv("HUBSYNC_LEDGER_FLUSH_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ledger.FlushCount = n
		}
	}
	if v := os.Getenv("HUBSYNC_LEDGER_FLUSH_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ledger.FlushInterval = n
		}
	}

	// Manifest settings
	if v := os.Getenv("HUBSYNC_MANIFEST_DIR"); v != "" {
		c.Manifest.Dir = v
	}
	if v := os.Getenv("HUBSYNC_MANIFEST_EXTENSION"); v != "" {
		c.Manifest.Extension = v
	}
	if v := os.Getenv("HUBSYNC_MANIFEST_MODE"); v != "" {
		c.Manifest.Mode = v
	}
	if v := os.Getenv("HUBSYNC_MANIFEST_SITE"); v != "" {
		c.Manifest.Site = v
	}

	// Backup settings
	if v := os.Getenv("HUBSYNC_BACKUP_ENABLED"); v != "" {
		c.Backup.Enabled = parseBool(v)
	}
	if v := os.Getenv("HUBSYNC_BACKUP_DIR"); v != "" {
		c.Backup.Dir = v
	}
	if v := os.Getenv("HUBSYNC_BACKUP_MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backup.MaxBackups = n
		}
	}
	if v := os.Getenv("HUBSYNC_BACKUP_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Backup.MaxAge = d
		}
	}

	// Output settings
	if v := os.Getenv("HUBSYNC_OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("HUBSYNC_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
	if v := os.Getenv("HUBSYNC_OUTPUT_VERBOSE"); v != "" {
		c.Output.Verbose = parseBool(v)
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Exists returns true if a config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}

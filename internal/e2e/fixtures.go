package e2e

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauern/hubsync/internal/model"
)

// Fixture provides helpers for creating workspace files in E2E tests.
type Fixture struct {
	t       *testing.T
	baseDir string
}

// NewFixture creates a new fixture helper rooted at the given directory.
func NewFixture(t *testing.T, baseDir string) *Fixture {
	t.Helper()
	return &Fixture{
		t:       t,
		baseDir: baseDir,
	}
}

// WriteFile writes content to a file relative to the fixture base directory.
// It creates parent directories as needed.
func (f *Fixture) WriteFile(relPath, content string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		f.t.Fatalf("failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(fullPath, []byte(content), 0o600); err != nil {
		f.t.Fatalf("failed to write file %s: %v", fullPath, err)
	}

	return fullPath
}

// WriteArtifact writes item as the JSON file <kind>/<name>.json.
func (f *Fixture) WriteArtifact(kind model.Kind, name string, item model.Artifact) string {
	f.t.Helper()
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		f.t.Fatalf("failed to marshal %s/%s: %v", kind, name, err)
	}
	return f.WriteFile(filepath.Join(kind.Dir(), name+".json"), string(data)+"\n")
}

// ReadArtifact decodes the JSON file <kind>/<name>.json.
func (f *Fixture) ReadArtifact(kind model.Kind, name string) model.Artifact {
	f.t.Helper()
	var item model.Artifact
	if err := json.Unmarshal([]byte(f.ReadFile(filepath.Join(kind.Dir(), name+".json"))), &item); err != nil {
		f.t.Fatalf("failed to decode %s/%s: %v", kind, name, err)
	}
	return item
}

// Path returns the full path for a relative path.
func (f *Fixture) Path(relPath string) string {
	return filepath.Join(f.baseDir, relPath)
}

// Exists returns true if the file or directory exists.
func (f *Fixture) Exists(relPath string) bool {
	f.t.Helper()
	_, err := os.Stat(filepath.Join(f.baseDir, relPath))
	return err == nil
}

// ReadFile reads and returns the content of a file.
func (f *Fixture) ReadFile(relPath string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	// #nosec G304 - fullPath is constructed from trusted test fixture base and test-provided path
	data, err := os.ReadFile(fullPath)
	if err != nil {
		f.t.Fatalf("failed to read file %s: %v", fullPath, err)
	}

	return string(data)
}

package backup

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	billyutil "github.com/go-git/go-billy/v5/util"

	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/util"
)

// steppingClock returns a clock advancing one minute per call.
func steppingClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Minute)
	}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return New(memfs.New()).WithClock(steppingClock(t0))
}

func TestCreateBackup(t *testing.T) {
	s := newTestStore()
	content := `{"id": "a", "name": "local edit"}`

	metadata, err := s.Create([]byte(content), Options{
		Kind:        model.Content,
		Source:      "a.json",
		Description: "before pull",
		Metadata:    map[string]string{"rev": "3"},
	})
	util.AssertNoError(t, err)

	util.AssertEqual(t, metadata.Kind, model.Content)
	util.AssertEqual(t, metadata.Source, "a.json")
	util.AssertEqual(t, metadata.Description, "before pull")
	util.AssertEqual(t, metadata.Size, int64(len(content)))
	util.AssertEqual(t, len(metadata.Hash), 64)
	if !strings.HasPrefix(metadata.BackupPath, "content/") || filepath.Ext(metadata.BackupPath) != ".json" {
		t.Errorf("unexpected backup path %q", metadata.BackupPath)
	}

	data, err := billyutil.ReadFile(s.fs, metadata.BackupPath)
	util.AssertNoError(t, err)
	util.AssertEqual(t, string(data), content)

	got, err := s.Get(metadata.ID)
	util.AssertNoError(t, err)
	util.AssertEqual(t, got.Metadata["rev"], "3")
}

func TestCreateBackupRequiresKindAndSource(t *testing.T) {
	s := newTestStore()
	if _, err := s.Create([]byte("{}"), Options{Kind: model.Pages}); err == nil {
		t.Error("expected error without a source")
	}
	if _, err := s.Create([]byte("{}"), Options{Source: "a.json"}); err == nil {
		t.Error("expected error without a kind")
	}
}

func TestRestoreBackup(t *testing.T) {
	s := newTestStore()
	metadata, err := s.Create([]byte(`{"id":"p1"}`), Options{Kind: model.Pages, Source: "docs/intro.json"})
	util.AssertNoError(t, err)

	target := memfs.New()
	restored, err := s.Restore(metadata.ID, target)
	util.AssertNoError(t, err)
	util.AssertEqual(t, restored.ID, metadata.ID)

	data, err := billyutil.ReadFile(target, "docs/intro.json")
	util.AssertNoError(t, err)
	util.AssertEqual(t, string(data), `{"id":"p1"}`)

	if _, err := s.Restore("missing", target); err == nil {
		t.Error("expected error for unknown backup")
	}
}

func TestRestoreDetectsCorruption(t *testing.T) {
	s := newTestStore()
	metadata, err := s.Create([]byte(`{"id":"a"}`), Options{Kind: model.Content, Source: "a.json"})
	util.AssertNoError(t, err)

	util.AssertNoError(t, billyutil.WriteFile(s.fs, metadata.BackupPath, []byte(`{"id":"tampered"}`), FilePerm))

	if err := s.Verify(metadata.ID); err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("expected hash mismatch, got %v", err)
	}
	if _, err := s.Restore(metadata.ID, memfs.New()); err == nil {
		t.Error("expected restore of a corrupted backup to fail")
	}
}

func TestVerifyMissingFile(t *testing.T) {
	s := newTestStore()
	metadata, err := s.Create([]byte(`{}`), Options{Kind: model.Types, Source: "t.json"})
	util.AssertNoError(t, err)
	util.AssertNoError(t, s.fs.Remove(metadata.BackupPath))

	if err := s.Verify(metadata.ID); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("expected missing file error, got %v", err)
	}
}

func TestListAndHistory(t *testing.T) {
	s := newTestStore()
	first, _ := s.Create([]byte("1"), Options{Kind: model.Content, Source: "a.json"})
	second, _ := s.Create([]byte("2"), Options{Kind: model.Content, Source: "a.json"})
	_, _ = s.Create([]byte("3"), Options{Kind: model.Pages, Source: "x.json"})

	all, err := s.List("")
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(all), 3)

	content, err := s.List(model.Content)
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(content), 2)
	util.AssertEqual(t, content[0].ID, second.ID)

	history, err := s.History(model.Content, "a.json")
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(history), 2)
	util.AssertEqual(t, history[1].ID, first.ID)
}

func TestDeleteBackup(t *testing.T) {
	s := newTestStore()
	metadata, _ := s.Create([]byte("x"), Options{Kind: model.Content, Source: "a.json"})

	util.AssertNoError(t, s.Delete(metadata.ID))
	if _, err := s.fs.Stat(metadata.BackupPath); err == nil {
		t.Error("expected backup file to be removed")
	}
	list, _ := s.List("")
	util.AssertEqual(t, len(list), 0)

	if err := s.Delete(metadata.ID); err == nil {
		t.Error("expected error deleting an unknown backup")
	}
}

func TestIndexPersistsAcrossStores(t *testing.T) {
	dir := util.CreateTempDir(t)
	metadata, err := New(osfs.New(dir)).Create([]byte("x"), Options{Kind: model.Sites, Source: "s.json"})
	util.AssertNoError(t, err)

	got, err := Open(dir).Get(metadata.ID)
	util.AssertNoError(t, err)
	util.AssertEqual(t, got.Hash, metadata.Hash)
}

func TestCorruptIndex(t *testing.T) {
	s := newTestStore()
	util.AssertNoError(t, billyutil.WriteFile(s.fs, IndexFilename, []byte("{not json"), FilePerm))

	if _, err := s.List(""); err == nil {
		t.Error("expected error for a corrupt index")
	}
}

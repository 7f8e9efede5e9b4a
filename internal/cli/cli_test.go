package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klauern/hubsync/internal/backup"
	"github.com/klauern/hubsync/internal/config"
	"github.com/klauern/hubsync/internal/local"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
	"github.com/klauern/hubsync/internal/remote/mock"
	"github.com/klauern/hubsync/internal/sync"
)

type harness struct {
	t      *testing.T
	root   string
	out    bytes.Buffer
	errOut bytes.Buffer
	stores map[model.Kind]*mock.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{t: t, root: t.TempDir(), stores: make(map[model.Kind]*mock.Store)}
}

// remote returns the in-memory hub store for kind, shared across runs.
func (h *harness) remote(kind model.Kind) *mock.Store {
	if s, ok := h.stores[kind]; ok {
		return s
	}
	desc, _ := sync.DescriptorFor(kind)
	s := mock.New(kind).WithCapabilities(desc.Capabilities)
	h.stores[kind] = s
	return s
}

func (h *harness) run(args ...string) error {
	h.out.Reset()
	h.errOut.Reset()
	a := newApp(&h.out, &h.errOut, func(_ *config.Config, kind model.Kind, _ remote.Capabilities) remote.Store {
		return h.remote(kind)
	})
	full := append([]string{"hubsync", "--root", h.root, "--no-color"}, args...)
	return a.command().Run(context.Background(), full)
}

func (h *harness) writeItem(kind model.Kind, item model.Artifact) {
	h.t.Helper()
	desc, _ := sync.DescriptorFor(kind)
	store := local.New(osfs.New(filepath.Join(h.root, kind.Dir())), local.Options{PathBased: desc.PathBased})
	_, err := store.Save(item)
	require.NoError(h.t, err)
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run("version"))

	for _, want := range []string{"hubsync version", "commit:", "built:", "go:"} {
		assert.Contains(t, h.out.String(), want)
	}
}

func TestPushThenListModified(t *testing.T) {
	h := newHarness(t)
	h.writeItem(model.Content, model.Artifact{"id": "a", "name": "A"})
	h.writeItem(model.Content, model.Artifact{"id": "b", "name": "B"})

	require.NoError(t, h.run("list", "--modified", "--type", "content"))
	assert.Contains(t, h.out.String(), "2 artifact(s)")

	require.NoError(t, h.run("push", "--type", "content"))
	assert.Contains(t, h.out.String(), "Pushed:     2")
	assert.Equal(t, 2, h.remote(model.Content).Len())

	require.NoError(t, h.run("list", "--modified", "--type", "content"))
	assert.Contains(t, h.out.String(), "No artifacts found")

	_, err := os.Stat(filepath.Join(h.root, "content", ".hubsync-hashes"))
	assert.NoError(t, err, "the ledger lives in the kind directory")
}

func TestPushFailureReturnsError(t *testing.T) {
	h := newHarness(t)
	h.writeItem(model.Content, model.Artifact{"id": "a"})
	h.writeItem(model.Content, model.Artifact{"id": "b"})
	h.remote(model.Content).FailOn(mock.OpCreate, "b", remote.NewError(http.StatusForbidden, "forbidden"))

	err := h.run("push", "--type", "content")
	require.ErrorIs(t, err, errItemsFailed)
	assert.Contains(t, err.Error(), "push: 1")
	assert.Contains(t, h.out.String(), "failed content/b")
	assert.Contains(t, h.out.String(), "Failed:     1")
}

func TestPullJSONReport(t *testing.T) {
	h := newHarness(t)
	h.remote(model.Types).WithItems(model.Artifact{"id": "t1", "name": "Article"})

	require.NoError(t, h.run("--format", "json", "pull", "--type", "types"))

	var rep report
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &rep))
	assert.Equal(t, "pull", rep.Operation)
	assert.NotEmpty(t, rep.Session)
	assert.Equal(t, 1, rep.Totals.Processed)
	require.Len(t, rep.Items, 1)
	assert.Equal(t, sync.ActionPulled, rep.Items[0].Action)

	_, err := os.Stat(filepath.Join(h.root, "types", "t1.json"))
	assert.NoError(t, err)
}

func TestPullNamedIDsRequireOneType(t *testing.T) {
	h := newHarness(t)
	err := h.run("pull", "t1")
	assert.ErrorContains(t, err, "exactly one --type")
}

func TestDeleteCommand(t *testing.T) {
	h := newHarness(t)
	h.remote(model.Content).WithItems(model.Artifact{"id": "a"}, model.Artifact{"id": "b"})

	assert.Error(t, h.run("delete", "--type", "content"), "ids are required")

	require.NoError(t, h.run("delete", "--type", "content", "a"))
	assert.Equal(t, 1, h.remote(model.Content).Len())
	assert.Contains(t, h.out.String(), "Deleted:    1")

	err := h.run("delete", "--type", "renditions", "r1")
	assert.ErrorIs(t, err, sync.ErrDeleteNotSupported)
}

func TestCompareCommand(t *testing.T) {
	h := newHarness(t)
	h.writeItem(model.Content, model.Artifact{"id": "a", "name": "local name"})
	h.writeItem(model.Content, model.Artifact{"id": "same", "name": "same"})
	h.remote(model.Content).WithItems(
		model.Artifact{"id": "a", "name": "remote name"},
		model.Artifact{"id": "same", "name": "same"},
		model.Artifact{"id": "c"},
	)

	require.NoError(t, h.run("--format", "json", "compare", "--type", "content", ".", "remote"))

	var out []kindComparison
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].DiffCount)
	assert.Equal(t, 3, out[0].TotalCount)
	assert.Equal(t, []string{"c"}, out[0].Removed)
	assert.Equal(t, map[string]int{"a": 1}, out[0].Changed)

	require.NoError(t, h.run("compare", "--details", "--type", "content", ".", "remote"))
	assert.Contains(t, h.out.String(), "content/a")
	assert.Contains(t, h.out.String(), "content: 2 of 3 differ")

	assert.ErrorContains(t, h.run("compare", "."), "exactly 2 arguments")
}

func TestConfigCommand(t *testing.T) {
	h := newHarness(t)
	cfgPath := filepath.Join(t.TempDir(), "hubsync.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[server]\nurl = \"https://hub.example.com\"\ntoken = \"secret\"\n"), 0o600))

	require.NoError(t, h.run("--config", cfgPath, "--format", "yaml", "config"))
	assert.Contains(t, h.out.String(), "https://hub.example.com")
	assert.NotContains(t, h.out.String(), "secret")
}

func TestInvalidConfiguration(t *testing.T) {
	h := newHarness(t)
	err := h.run("--server", "ftp://nowhere", "list")
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestInvalidStatusFilter(t *testing.T) {
	h := newHarness(t)
	err := h.run("list", "--status", "published")
	assert.ErrorContains(t, err, "unknown status filter")
}

func TestPullBacksUpLocalEdits(t *testing.T) {
	h := newHarness(t)
	t.Setenv("HUBSYNC_HOME", t.TempDir())
	h.remote(model.Content).Put(model.Artifact{"id": "a", "name": "v1"})

	require.NoError(t, h.run("pull", "--type", "content"))
	require.NoError(t, h.run("backup", "list"))
	assert.Contains(t, h.out.String(), "No backups found")

	file := filepath.Join(h.root, "content", "a.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"id": "a", "name": "local edit"}`), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(file, later, later))
	h.remote(model.Content).Put(model.Artifact{"id": "a", "name": "v2", "rev": "2"})

	require.NoError(t, h.run("pull", "--type", "content"))

	require.NoError(t, h.run("--format", "json", "backup", "list", "--type", "content"))
	var list []backup.Metadata
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "a.json", list[0].Source)

	require.NoError(t, h.run("backup", "restore", list[0].ID))
	assert.Contains(t, h.out.String(), "restored content/a.json")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "local edit")

	require.NoError(t, h.run("backup", "stats"))
	assert.Contains(t, h.out.String(), "Backups: 1")
	assert.Contains(t, h.out.String(), "content")
}

func TestPullWithoutBackup(t *testing.T) {
	h := newHarness(t)
	home := t.TempDir()
	t.Setenv("HUBSYNC_HOME", home)
	h.remote(model.Content).Put(model.Artifact{"id": "a", "name": "v1"})
	require.NoError(t, h.run("pull", "--type", "content"))

	file := filepath.Join(h.root, "content", "a.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"id": "a", "name": "local edit"}`), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(file, later, later))
	h.remote(model.Content).Put(model.Artifact{"id": "a", "name": "v2", "rev": "2"})

	require.NoError(t, h.run("pull", "--no-backup", "--type", "content"))
	_, err := os.Stat(filepath.Join(home, "backups", backup.IndexFilename))
	assert.True(t, os.IsNotExist(err), "no backup store is written")
}

func TestBackupClean(t *testing.T) {
	h := newHarness(t)
	home := t.TempDir()
	t.Setenv("HUBSYNC_HOME", home)
	t.Setenv("HUBSYNC_BACKUP_MAX_BACKUPS", "1")

	store := backup.Open(filepath.Join(home, "backups"))
	for _, body := range []string{"1", "2", "3"} {
		_, err := store.Create([]byte(body), backup.Options{Kind: model.Pages, Source: "p.json"})
		require.NoError(t, err)
	}

	require.NoError(t, h.run("backup", "clean", "--dry-run"))
	assert.Contains(t, h.out.String(), "Would remove 2 backup(s)")

	require.NoError(t, h.run("backup", "clean"))
	assert.Contains(t, h.out.String(), "Removed 2 backup(s)")

	list, err := store.List("")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorContains(t, h.run("backup", "restore"), "exactly one backup id")
}

func TestCompareSkipsKindsOutsideReadManifest(t *testing.T) {
	h := newHarness(t)
	h.writeItem(model.Content, model.Artifact{"id": "c1"})
	h.remote(model.Content).WithItems(model.Artifact{"id": "c1"}, model.Artifact{"id": "c2"})
	h.writeItem(model.Types, model.Artifact{"id": "t1", "name": "Article"})
	h.remote(model.Types).WithItems(model.Artifact{"id": "t1", "name": "Article"})

	require.NoError(t, os.MkdirAll(filepath.Join(h.root, "manifests"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "manifests", "sel.json"),
		[]byte(`{"types": {"t1": {"id": "t1"}}}`), 0o644))

	require.NoError(t, h.run("--format", "json", "compare",
		"--read-manifest", "sel", "--deletions-manifest", "gone", ".", "remote"))

	var out []kindComparison
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, model.Types, out[0].Kind)
	assert.Equal(t, 0, out[0].DiffCount)

	data, err := os.ReadFile(filepath.Join(h.root, "manifests", "gone.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "c1")
	assert.NotContains(t, string(data), "c2")
}

func TestPushWithReadManifestOnlyPushesSelectedKinds(t *testing.T) {
	h := newHarness(t)
	h.writeItem(model.Content, model.Artifact{"id": "a"})
	h.writeItem(model.Content, model.Artifact{"id": "b"})
	h.writeItem(model.Types, model.Artifact{"id": "t1"})

	require.NoError(t, os.MkdirAll(filepath.Join(h.root, "manifests"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "manifests", "sel.json"),
		[]byte(`{"types": {"t1": {"id": "t1"}}}`), 0o644))

	require.NoError(t, h.run("push", "--read-manifest", "sel"))
	assert.Equal(t, 0, h.remote(model.Content).Len())
	assert.Equal(t, 1, h.remote(model.Types).Len())
}

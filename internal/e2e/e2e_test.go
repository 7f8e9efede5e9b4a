package e2e_test

import (
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauern/hubsync/internal/e2e"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
	"github.com/klauern/hubsync/internal/remote/mock"
)

type report struct {
	Operation string `json:"operation"`
	Items     []struct {
		Kind   string `json:"kind"`
		Item   string `json:"item"`
		Action string `json:"action"`
	} `json:"items"`
	Totals struct {
		Processed int `json:"processed"`
		Conflicts int `json:"conflicts"`
		Failed    int `json:"failed"`
	} `json:"totals"`
}

// TestVersionCommand verifies the version command works correctly.
func TestVersionCommand(t *testing.T) {
	h := e2e.NewHarness(t)

	result := h.Run("version")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "hubsync version")
}

// TestPushNestedPagesThenListModified pushes a page tree and checks that
// nothing is reported as modified right after.
func TestPushNestedPagesThenListModified(t *testing.T) {
	h := e2e.NewHarness(t)
	ws := h.Workspace()
	ws.WriteArtifact(model.Pages, "a", model.Artifact{"name": "A", "hierarchicalPath": "/a"})
	ws.WriteArtifact(model.Pages, "a/b", model.Artifact{"name": "B", "hierarchicalPath": "/a/b"})
	ws.WriteArtifact(model.Pages, "a/b/c", model.Artifact{"name": "C", "hierarchicalPath": "/a/b/c"})

	before := h.Run("list", "--modified", "--type", "pages")
	e2e.AssertSuccess(t, before)
	e2e.AssertOutputContains(t, before, "3 artifact(s)")

	push := h.Run("push", "--type", "pages")
	e2e.AssertSuccess(t, push)
	e2e.AssertOutputContains(t, push, "Pushed:     3")

	if n := h.Hub().Store(model.Pages).Len(); n != 3 {
		t.Fatalf("expected 3 pages on the hub, got %d", n)
	}
	if id := ws.ReadArtifact(model.Pages, "a/b/c").ID(); id == "" {
		t.Error("expected the pushed page file to carry the id assigned by the hub")
	}

	after := h.Run("list", "--modified", "--type", "pages")
	e2e.AssertSuccess(t, after)
	e2e.AssertOutputContains(t, after, "No artifacts found")
}

// TestPullEditPushRoundTrip pulls content, edits one file and pushes only the edit.
func TestPullEditPushRoundTrip(t *testing.T) {
	h := e2e.NewHarness(t)
	h.Hub().Store(model.Content).WithItems(
		model.Artifact{"id": "a", "name": "Alpha"},
		model.Artifact{"id": "b", "name": "Beta"},
	)
	ws := h.Workspace()

	pull := h.Run("pull", "--type", "content")
	e2e.AssertSuccess(t, pull)
	e2e.AssertOutputContains(t, pull, "Pulled:     2")
	e2e.AssertFileExists(t, ws.Path("content/a.json"))
	e2e.AssertFileExists(t, ws.Path("content/b.json"))

	clean := h.Run("list", "--modified", "--type", "content")
	e2e.AssertSuccess(t, clean)
	e2e.AssertOutputContains(t, clean, "No artifacts found")

	edited := ws.ReadArtifact(model.Content, "a")
	edited["name"] = "Alpha v2"
	ws.WriteArtifact(model.Content, "a", edited)

	modified := h.Run("list", "--modified", "--type", "content")
	e2e.AssertSuccess(t, modified)
	e2e.AssertOutputContains(t, modified, "1 artifact(s)")

	push := h.Run("--format", "json", "push", "--modified", "--type", "content")
	e2e.AssertSuccess(t, push)
	var rep report
	e2e.DecodeJSON(t, push, &rep)
	if len(rep.Items) != 1 || rep.Items[0].Item != "a" || rep.Items[0].Action != "pushed" {
		t.Fatalf("expected only a to be pushed, got %+v", rep.Items)
	}

	item, _ := h.Hub().Store(model.Content).Item("a")
	if item.Name() != "Alpha v2" {
		t.Errorf("expected hub to hold the edit, got %q", item.Name())
	}
}

// TestPullModifiedOnlyFetchesNewItems relies on the pull watermark kept in the ledger.
func TestPullModifiedOnlyFetchesNewItems(t *testing.T) {
	h := e2e.NewHarness(t)
	hub := h.Hub().Store(model.Types)
	hub.WithItems(model.Artifact{"id": "article", "name": "Article"})

	e2e.AssertSuccess(t, h.Run("pull", "--type", "types"))

	hub.Put(model.Artifact{"id": "event", "name": "Event"})
	hub.Touch("event")

	result := h.Run("--format", "json", "pull", "--modified", "--type", "types")
	e2e.AssertSuccess(t, result)

	var rep report
	e2e.DecodeJSON(t, result, &rep)
	if len(rep.Items) != 1 || rep.Items[0].Item != "event" {
		t.Fatalf("expected only event to be pulled, got %+v", rep.Items)
	}
	e2e.AssertFileExists(t, h.WorkspacePath("types/event.json"))
}

// TestPushConflict edits an item on both sides and saves the hub's version.
func TestPushConflict(t *testing.T) {
	h := e2e.NewHarness(t)
	hub := h.Hub().Store(model.Content)
	hub.WithItems(model.Artifact{"id": "a", "name": "Original"})
	ws := h.Workspace()

	e2e.AssertSuccess(t, h.Run("pull", "--type", "content"))

	hub.Put(model.Artifact{"id": "a", "name": "Edited on the hub", "rev": "2"})
	local := ws.ReadArtifact(model.Content, "a")
	local["name"] = "Edited locally"
	ws.WriteArtifact(model.Content, "a", local)

	result := h.Run("push", "--save-conflicts", "--type", "content")

	e2e.AssertExitCode(t, result, 1)
	e2e.AssertErrorContains(t, result, "items failed")
	e2e.AssertOutputContains(t, result, "Conflicts:  1")
	e2e.AssertFileContains(t, ws.Path("content/a.json.conflict"), "Edited on the hub")

	item, _ := hub.Item("a")
	if item.Name() != "Edited on the hub" {
		t.Errorf("expected the hub version to survive, got %q", item.Name())
	}
}

// TestPushReportsRejectedItems keeps pushing the rest when the hub rejects one item.
func TestPushReportsRejectedItems(t *testing.T) {
	h := e2e.NewHarness(t)
	ws := h.Workspace()
	ws.WriteArtifact(model.Content, "ok", model.Artifact{"id": "ok", "name": "Fine"})
	ws.WriteArtifact(model.Content, "bad", model.Artifact{"id": "bad", "name": "Rejected"})
	h.Hub().Store(model.Content).FailOn(mock.OpCreate, "bad", remote.NewError(http.StatusForbidden, "not allowed"))

	result := h.Run("push", "--type", "content")

	e2e.AssertError(t, result)
	e2e.AssertOutputContains(t, result, "failed content/bad")
	e2e.AssertOutputContains(t, result, "not allowed")
	e2e.AssertOutputContains(t, result, "Pushed:     1")

	modified := h.Run("list", "--modified", "--type", "content")
	e2e.AssertSuccess(t, modified)
	e2e.AssertOutputContains(t, modified, "bad")
	e2e.AssertOutputNotContains(t, modified, "ok")
}

// TestCompareWritesManifests records both sides of a comparison in manifests.
func TestCompareWritesManifests(t *testing.T) {
	h := e2e.NewHarness(t)
	ws := h.Workspace()
	ws.WriteArtifact(model.Content, "new", model.Artifact{"id": "new", "name": "Only local"})
	ws.WriteArtifact(model.Content, "same", model.Artifact{"id": "same", "name": "Same"})
	h.Hub().Store(model.Content).WithItems(
		model.Artifact{"id": "same", "name": "Same", "rev": "7", "lastModified": "2026-01-02T03:04:05Z"},
		model.Artifact{"id": "gone", "name": "Only remote"},
	)

	result := h.Run("compare", "--type", "content",
		"--write-manifest", "to-push", "--deletions-manifest", "to-delete", ".", "remote")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "content: 2 of 3 differ")
	e2e.AssertFileContains(t, ws.Path("manifests/to-push.json"), "new")
	e2e.AssertFileContains(t, ws.Path("manifests/to-delete.json"), "gone")

	// The write manifest limits the next push to the added item.
	push := h.Run("push", "--read-manifest", "to-push", "--type", "content")
	e2e.AssertSuccess(t, push)
	e2e.AssertOutputContains(t, push, "Pushed:     1")
	if _, ok := h.Hub().Store(model.Content).Item("new"); !ok {
		t.Error("expected new to be pushed")
	}
}

// TestDeleteFromHub deletes by id and refuses immutable kinds.
func TestDeleteFromHub(t *testing.T) {
	h := e2e.NewHarness(t)
	h.Hub().Store(model.Assets).WithItems(
		model.Artifact{"id": "logo", "path": "/img/logo.png"},
		model.Artifact{"id": "banner", "path": "/img/banner.png"},
	)

	result := h.Run("delete", "--type", "assets", "logo")
	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "Deleted:    1")
	if n := h.Hub().Store(model.Assets).Len(); n != 1 {
		t.Errorf("expected 1 asset left, got %d", n)
	}

	e2e.AssertErrorContains(t, h.Run("delete", "--type", "renditions", "r1"), "not supported")
}

// TestServerSettingsFromEnvironment sends the tenant and token configured in the environment.
func TestServerSettingsFromEnvironment(t *testing.T) {
	h := e2e.NewHarness(t)
	h.SetEnv("HUBSYNC_SERVER_TENANT", "acme")
	h.SetEnv("HUBSYNC_SERVER_TOKEN", "s3cret")

	result := h.Run("list", "--remote", "--type", "sites")

	e2e.AssertSuccess(t, result)
	e2e.AssertOutputContains(t, result, "No artifacts found")
	if got := h.Hub().LastHeader(remote.TenantHeader); got != "acme" {
		t.Errorf("expected tenant header acme, got %q", got)
	}
	if got := h.Hub().LastHeader("Authorization"); got != "Bearer s3cret" {
		t.Errorf("expected bearer token, got %q", got)
	}

	config := h.Run("config")
	e2e.AssertSuccess(t, config)
	e2e.AssertOutputNotContains(t, config, "s3cret")
}

// TestUnreachableHub fails without touching the workspace.
func TestUnreachableHub(t *testing.T) {
	h := e2e.NewHarness(t)
	h.SetEnv("HUBSYNC_SERVER_URL", "http://127.0.0.1:1")
	h.SetEnv("HUBSYNC_SERVER_TIMEOUT", "2s")

	result := h.Run("pull", "--type", "libraries")

	e2e.AssertError(t, result)
	if h.Hub().Requests() != 0 {
		t.Errorf("expected no requests to the test hub, got %d", h.Hub().Requests())
	}
	if strings.TrimSpace(result.Stdout) == "" {
		t.Error("expected a summary even when the hub is unreachable")
	}
}

// TestInvalidConfigurationFile rejects a config file with bad settings.
func TestInvalidConfigurationFile(t *testing.T) {
	h := e2e.NewHarness(t)
	path := h.Workspace().WriteFile("hubsync.yaml", "sync:\n  concurrency: -1\n")

	result := h.Run("--config", path, "list")

	e2e.AssertError(t, result)
	e2e.AssertErrorContains(t, result, "invalid configuration")
}

// TestPullKeepsLocalEditsInBackup overwrites an unpushed edit and restores it.
func TestPullKeepsLocalEditsInBackup(t *testing.T) {
	h := e2e.NewHarness(t)
	hub := h.Hub().Store(model.Content)
	hub.Put(model.Artifact{"id": "a", "name": "Alpha"})
	ws := h.Workspace()

	e2e.AssertSuccess(t, h.Run("pull", "--type", "content"))

	edited := ws.ReadArtifact(model.Content, "a")
	edited["name"] = "Alpha local"
	ws.WriteArtifact(model.Content, "a", edited)
	hub.Put(model.Artifact{"id": "a", "name": "Alpha remote", "rev": "2"})

	e2e.AssertSuccess(t, h.Run("pull", "--type", "content"))
	if got := ws.ReadArtifact(model.Content, "a").Name(); got != "Alpha remote" {
		t.Fatalf("expected the hub version after pull, got %q", got)
	}

	var backups []struct {
		ID     string `json:"id"`
		Source string `json:"source"`
	}
	list := h.Run("--format", "json", "backup", "list")
	e2e.AssertSuccess(t, list)
	e2e.DecodeJSON(t, list, &backups)
	if len(backups) != 1 || backups[0].Source != "a.json" {
		t.Fatalf("expected one backup of a.json, got %+v", backups)
	}
	e2e.AssertFileExists(t, filepath.Join(h.HomeDir(), "backups", "index.json"))

	restore := h.Run("backup", "restore", backups[0].ID)
	e2e.AssertSuccess(t, restore)
	if got := ws.ReadArtifact(model.Content, "a").Name(); got != "Alpha local" {
		t.Errorf("expected the local edit back, got %q", got)
	}
}

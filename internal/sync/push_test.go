package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
	"github.com/klauern/hubsync/internal/remote/mock"
	"github.com/klauern/hubsync/internal/validation"
)

func unavailable() error {
	return remote.NewError(http.StatusServiceUnavailable, "try again")
}

func TestPushItem_RepeatedPushKeepsLedgerInStep(t *testing.T) {
	f := newFixture(t, contentDesc, Options{})
	ctx := context.Background()
	f.save(model.Artifact{"id": "c1", "name": "Home", "status": "draft"})

	for i := 0; i < 2; i++ {
		pushed, err := f.engine.PushItem(ctx, f.sess, "c1")
		require.NoError(t, err, "push %d", i+1)
		assert.Equal(t, f.remoteRev("c1"), pushed.Rev())
		assert.Equal(t, f.remoteRev("c1"), f.ledgerRev("c1"), "push %d", i+1)
	}

	res := f.rec.Result()
	assert.Len(t, res.Pushed(), 2)
	assert.Empty(t, res.Conflicts())
	assert.Equal(t, 0, f.sess.ErrorCount())
}

func TestPushItem_AbsorbsConflictInIgnoredFields(t *testing.T) {
	f := newFixture(t, contentDesc, Options{})
	ctx := context.Background()
	f.remote.Put(model.Artifact{"id": "c1", "name": "Home", "status": "draft", "links": map[string]any{"self": "/c1"}})

	_, err := f.engine.PullItem(ctx, f.sess, "c1")
	require.NoError(t, err)
	f.remote.Touch("c1")
	require.NotEqual(t, f.ledgerRev("c1"), f.remoteRev("c1"))

	pushed, err := f.engine.PushItem(ctx, f.sess, "c1")
	require.NoError(t, err)
	assert.Equal(t, f.remoteRev("c1"), pushed.Rev())
	assert.Equal(t, f.remoteRev("c1"), f.ledgerRev("c1"))

	res := f.rec.Result()
	assert.Empty(t, res.Failed())
	assert.Empty(t, res.Conflicts())
	assert.Len(t, res.Pushed(), 1)
}

func TestPushItem_RealConflict(t *testing.T) {
	f := newFixture(t, contentDesc, Options{SaveConflicts: true})
	ctx := context.Background()
	f.remote.Put(model.Artifact{"id": "c1", "name": "Home", "rev": "1"})

	_, err := f.engine.PullItem(ctx, f.sess, "c1")
	require.NoError(t, err)
	f.remote.Put(model.Artifact{"id": "c1", "name": "Changed on the hub", "rev": "5"})

	_, err = f.engine.PushItem(ctx, f.sess, "c1")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, remote.IsConflict(err))
	require.Len(t, conflict.Diff.Changed, 1)
	assert.Equal(t, "name", conflict.Diff.Changed[0].Path())
	assert.Equal(t, "c1.json.conflict", conflict.ConflictPath)
	assert.True(t, f.local.Exists(conflict.ConflictPath))

	assert.Equal(t, "1", f.ledgerRev("c1"), "a conflict leaves the ledger alone")
	assert.Len(t, f.rec.Result().Conflicts(), 1)
	assert.Equal(t, 1, f.sess.ErrorCount())
}

func TestPushNames_AllRetryableFailuresRunOneRound(t *testing.T) {
	f := newFixture(t, contentDesc, Options{})
	names := []string{"a", "b", "c"}
	for _, n := range names {
		f.save(model.Artifact{"id": n, "name": n})
	}
	f.remote.FailOn(mock.OpCreate, "", unavailable())

	pushed, err := f.engine.PushNames(context.Background(), f.sess, names)
	require.NoError(t, err)
	assert.Empty(t, pushed)

	assert.Equal(t, len(names), f.remote.Calls(mock.OpCreate), "exactly one round")
	assert.Equal(t, len(names), f.sess.ErrorCount())
	assert.Len(t, f.rec.Result().Failed(), len(names))
}

func TestPushNames_RetriesOnlyRetryableSubset(t *testing.T) {
	f := newFixture(t, contentDesc, Options{})
	names := []string{"a", "b", "c"}
	for _, n := range names {
		f.save(model.Artifact{"id": n, "name": n})
	}
	f.remote.FailOn(mock.OpCreate, "b", unavailable())
	f.remote.FailOn(mock.OpCreate, "c", unavailable())

	pushed, err := f.engine.PushNames(context.Background(), f.sess, names)
	require.NoError(t, err)
	require.Len(t, pushed, 1)
	assert.Equal(t, "a", pushed[0].ID())

	assert.Equal(t, 1, f.remote.CallsFor(mock.OpCreate, "a"))
	assert.Equal(t, 2, f.remote.CallsFor(mock.OpCreate, "b"), "second round holds the failed items")
	assert.Equal(t, 2, f.remote.CallsFor(mock.OpCreate, "c"))
	assert.Equal(t, 5, f.remote.Calls(mock.OpCreate))
	assert.Equal(t, 2, f.sess.ErrorCount())
}

func TestPushNames_RetrySucceeds(t *testing.T) {
	f := newFixture(t, contentDesc, Options{})
	names := []string{"a", "b"}
	for _, n := range names {
		f.save(model.Artifact{"id": n, "name": n})
	}
	f.remote.FailTimes(mock.OpCreate, "b", 1, unavailable())

	pushed, err := f.engine.PushNames(context.Background(), f.sess, names)
	require.NoError(t, err)
	assert.Len(t, pushed, 2)
	assert.Equal(t, 0, f.sess.ErrorCount())
	assert.Empty(t, f.rec.Result().Failed())
}

func TestPushItem_NonRetryableFailsOnce(t *testing.T) {
	f := newFixture(t, contentDesc, Options{})
	f.save(model.Artifact{"id": "a", "name": "a"})
	f.remote.FailOn(mock.OpCreate, "a", remote.NewError(http.StatusBadRequest, "bad field"))

	pushed, err := f.engine.PushNames(context.Background(), f.sess, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, pushed)
	assert.Equal(t, 1, f.remote.CallsFor(mock.OpCreate, "a"))
	assert.Equal(t, 1, f.sess.ErrorCount())

	failed := f.rec.Result().Failed()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Message, "bad field")
}

func TestPushItem_DescriptorRetryable(t *testing.T) {
	desc := pagesDesc
	desc.Retryable = referenceNotReady
	f := newFixture(t, desc, Options{})

	f.save(model.Artifact{"id": "parent", "hierarchicalPath": "/a"})
	f.save(model.Artifact{"id": "child", "hierarchicalPath": "/a/b"})
	f.remote.FailTimes(mock.OpCreate, "child", 1,
		remote.NewError(http.StatusUnprocessableEntity, "Parent page does not exist"))

	pushed, err := f.engine.PushNames(context.Background(), f.sess, []string{"a/b", "a"})
	require.NoError(t, err)
	assert.Len(t, pushed, 2)
	assert.Equal(t, 2, f.remote.CallsFor(mock.OpCreate, "child"))
}

func TestPushItem_NewItemLearnsID(t *testing.T) {
	f := newFixture(t, contentDesc, Options{})
	f.writeRaw("draft.json", map[string]any{"name": "Fresh"})

	pushed, err := f.engine.PushItem(context.Background(), f.sess, "draft")
	require.NoError(t, err)
	require.NotEmpty(t, pushed.ID())

	assert.False(t, f.local.Exists("draft.json"), "file is renamed to the assigned id")
	saved, err := f.local.Get(pushed.ID())
	require.NoError(t, err)
	assert.Equal(t, pushed.ID(), saved.ID())

	modified, err := f.engine.ListLocalModified(context.Background(), f.sess, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, modified)
}

func TestPushItem_UpdateOfMissingItemCreates(t *testing.T) {
	f := newFixture(t, contentDesc, Options{})
	f.save(model.Artifact{"id": "gone", "name": "n", "rev": "7"})

	pushed, err := f.engine.PushItem(context.Background(), f.sess, "gone")
	require.NoError(t, err)
	assert.Equal(t, 1, f.remote.CallsFor(mock.OpUpdate, "gone"))
	assert.Equal(t, 1, f.remote.CallsFor(mock.OpCreate, "gone"))
	assert.Equal(t, f.remoteRev("gone"), pushed.Rev())
}

func TestPushItem_InvalidShape(t *testing.T) {
	f := newFixture(t, contentDesc, Options{})
	f.writeRaw("bad.json", map[string]any{"id": 12})

	_, err := f.engine.PushItem(context.Background(), f.sess, "bad")
	assert.ErrorIs(t, err, validation.ErrInvalidArtifact)
	assert.Equal(t, 0, f.remote.Calls(mock.OpCreate)+f.remote.Calls(mock.OpUpdate))
	assert.Equal(t, 1, f.sess.ErrorCount())
}

func TestPushItem_PrepareAndCanPushHooks(t *testing.T) {
	desc := contentDesc
	desc.PrepareForPush = func(a model.Artifact) model.Artifact {
		a["prepared"] = true
		return a
	}
	desc.CanPush = func(a model.Artifact) error {
		if a.Name() == "forbidden" {
			return errors.New("name is reserved")
		}
		return nil
	}
	f := newFixture(t, desc, Options{})
	f.save(model.Artifact{"id": "ok", "name": "fine"})
	f.save(model.Artifact{"id": "no", "name": "forbidden"})

	pushed, err := f.engine.PushNames(context.Background(), f.sess, []string{"ok", "no"})
	require.NoError(t, err)
	require.Len(t, pushed, 1)

	it, _ := f.remote.Item("ok")
	assert.Equal(t, true, it["prepared"])
	saved, err := f.local.Get("ok")
	require.NoError(t, err)
	assert.NotContains(t, saved, "prepared", "hooks work on a copy")
	assert.Equal(t, 1, f.sess.ErrorCount())
}

func TestPushItem_RewriteOnPush(t *testing.T) {
	f := newFixture(t, contentDesc, Options{RewriteOnPush: true})
	f.save(model.Artifact{"id": "c1", "name": "n"})

	pushed, err := f.engine.PushItem(context.Background(), f.sess, "c1")
	require.NoError(t, err)

	saved, err := f.local.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, pushed.Rev(), saved.Rev())
	assert.NotEmpty(t, saved.LastModified())
}

func TestPushAll_SetsWatermarkOnlyWithoutErrors(t *testing.T) {
	start := mustTime(t, "2026-03-01T10:00:00Z")
	f := newFixture(t, contentDesc, Options{Clock: fixedClock(start)})
	f.save(model.Artifact{"id": "a", "name": "a"})

	_, err := f.engine.PushAll(context.Background(), f.sess, ListOptions{})
	require.NoError(t, err)
	assert.True(t, f.ledger.LastPush(model.StatusAll).Equal(start))

	later := start.Add(time.Hour)
	f.engine.opts.Clock = fixedClock(later)
	f.save(model.Artifact{"id": "b", "name": "b"})
	f.remote.FailOn(mock.OpCreate, "b", remote.NewError(http.StatusBadRequest, "no"))

	_, err = f.engine.PushAll(context.Background(), f.sess, ListOptions{})
	require.NoError(t, err)
	assert.True(t, f.ledger.LastPush(model.StatusAll).Equal(start), "failed runs leave the watermark")
}

func TestPushModified_SkipsDeletedFiles(t *testing.T) {
	f := newFixture(t, contentDesc, Options{})
	ctx := context.Background()
	f.save(model.Artifact{"id": "a", "name": "a"})
	f.save(model.Artifact{"id": "b", "name": "b"})
	_, err := f.engine.PushAll(ctx, f.sess, ListOptions{})
	require.NoError(t, err)
	f.remote.Reset()

	require.NoError(t, f.local.Remove("a.json"))
	f.save(model.Artifact{"id": "b", "name": "b2"})
	f.touchFile("b.json")

	pushed, err := f.engine.PushModified(ctx, f.sess, ListOptions{})
	require.NoError(t, err)
	require.Len(t, pushed, 1)
	assert.Equal(t, "b", pushed[0].ID())
	assert.Equal(t, 0, f.remote.CallsFor(mock.OpUpdate, "a")+f.remote.CallsFor(mock.OpCreate, "a"))
}

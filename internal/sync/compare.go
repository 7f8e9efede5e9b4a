package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"

	"github.com/klauern/hubsync/internal/diff"
	"github.com/klauern/hubsync/internal/local"
	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/manifest"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
	"github.com/klauern/hubsync/internal/throttle"
)

// Side is one end of a comparison: a way to enumerate ids and to fetch an
// item by id.
type Side struct {
	Name string
	List func(ctx context.Context) ([]string, error)
	Get  func(ctx context.Context, id string) (model.Artifact, error)
}

// LocalSide compares the items of a working directory. Files are indexed by
// id on first use.
func LocalSide(store *local.Store) Side {
	var (
		once  gosync.Once
		index map[string]string
		err   error
	)
	load := func() {
		var names []string
		names, err = store.ListNames()
		index = make(map[string]string, len(names))
		for _, name := range names {
			item, gerr := store.Get(name)
			if gerr != nil || item.ID() == "" {
				continue
			}
			index[item.ID()] = name
		}
	}

	return Side{
		Name: "local:" + store.Filesystem().Root(),
		List: func(context.Context) ([]string, error) {
			once.Do(load)
			if err != nil {
				return nil, err
			}
			ids := make([]string, 0, len(index))
			for id := range index {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			return ids, nil
		},
		Get: func(_ context.Context, id string) (model.Artifact, error) {
			once.Do(load)
			name, ok := index[id]
			if !ok {
				return nil, fmt.Errorf("no local item with id %q", id)
			}
			return store.Get(name)
		},
	}
}

// RemoteSide compares the items stored on the hub.
func RemoteSide(store remote.Store, pageSize int) Side {
	return Side{
		Name: "remote:" + string(store.Kind()),
		List: func(ctx context.Context) ([]string, error) {
			var ids []string
			opts := remote.PageOptions{Limit: pageSize}
			for {
				page, err := store.ListAll(ctx, opts)
				if err != nil {
					return nil, err
				}
				for _, it := range page.Items {
					ids = append(ids, it.ID())
				}
				if page.Continuation == "" {
					break
				}
				opts.Continuation = page.Continuation
			}
			sort.Strings(ids)
			return ids, nil
		},
		Get: store.Get,
	}
}

// ManifestSide enumerates the ids selected by a read manifest and fetches
// items through inner.
func ManifestSide(m *manifest.Store, kind model.Kind, inner Side) Side {
	return Side{
		Name: "manifest:" + inner.Name,
		List: func(context.Context) ([]string, error) {
			var ids []string
			for _, it := range m.Section(kind) {
				if it.ID != "" {
					ids = append(ids, it.ID)
				}
			}
			sort.Strings(ids)
			return ids, nil
		},
		Get: inner.Get,
	}
}

// CompareResult tallies a comparison.
type CompareResult struct {
	// DiffCount counts ids added, removed or changed.
	DiffCount int
	// TotalCount counts ids present on either side.
	TotalCount int

	Added   []string
	Removed []string
	Changed map[string]diff.Result
	// Failed holds ids that could not be fetched from one of the sides.
	Failed map[string]error
}

// Compare diffs target against source. Ids only in target are reported
// removed and recorded in the deletions manifest; ids only in source are
// reported added and recorded in the write manifest. Shared ids are fetched
// from both sides at once and diffed.
func Compare(ctx context.Context, sess *Session, kind model.Kind, source, target Side, ignore diff.Keys) (CompareResult, error) {
	logger := sess.Logger.With(logging.Kind(string(kind)))
	timer := logging.StartTimer(logger, "compare")

	srcIDs, err := source.List(ctx)
	if err != nil {
		return CompareResult{}, fmt.Errorf("listing %s: %w", source.Name, err)
	}
	tgtIDs, err := target.List(ctx)
	if err != nil {
		return CompareResult{}, fmt.Errorf("listing %s: %w", target.Name, err)
	}

	inSource := toSet(srcIDs)
	inTarget := toSet(tgtIDs)
	res := CompareResult{
		Changed: make(map[string]diff.Result),
		Failed:  make(map[string]error),
	}

	var shared []string
	for _, id := range srcIDs {
		if inTarget[id] {
			shared = append(shared, id)
			continue
		}
		res.Added = append(res.Added, id)
		sess.Observer.Added(kind, id)
	}
	for _, id := range tgtIDs {
		if !inSource[id] {
			res.Removed = append(res.Removed, id)
			sess.Observer.Removed(kind, id)
		}
	}

	tasks := make([]throttle.Task[diff.Result], len(shared))
	for i, id := range shared {
		tasks[i] = func(ctx context.Context) (diff.Result, error) {
			a, err := source.Get(ctx, id)
			if err != nil {
				return diff.Result{}, fmt.Errorf("%s: %w", source.Name, err)
			}
			b, err := target.Get(ctx, id)
			if err != nil {
				return diff.Result{}, fmt.Errorf("%s: %w", target.Name, err)
			}
			return diff.Compare(a, b, ignore), nil
		}
	}

	var changed []string
	for i, o := range throttle.Run(ctx, tasks, 0) {
		id := shared[i]
		switch {
		case !o.Fulfilled():
			res.Failed[id] = o.Err
			sess.addError()
			logger.Error("failed to compare item", logging.Item(id), logging.Err(o.Err))
		case !o.Value.Empty():
			res.Changed[id] = o.Value
			changed = append(changed, id)
			sess.Observer.Diff(kind, id, o.Value)
		}
	}

	if sess.Manifest != nil {
		if items := idItems(append(append([]string(nil), res.Added...), changed...)); items != nil {
			sess.Manifest.UpdateSection(kind, items)
		}
		if items := idItems(res.Removed); items != nil {
			sess.Manifest.UpdateDeletionsSection(kind, items)
		}
	}

	res.DiffCount = len(res.Added) + len(res.Removed) + len(res.Changed)
	res.TotalCount = len(srcIDs) + len(res.Removed)
	timer.Stop(logging.Count(res.TotalCount), "differences", res.DiffCount)
	return res, ctx.Err()
}

// Compare diffs two sides of the engine's kind using the descriptor's
// conflict ignore keys.
func (e *Engine) Compare(ctx context.Context, sess *Session, source, target Side) (CompareResult, error) {
	return Compare(ctx, sess, e.desc.Kind, source, target, e.desc.ignoreKeys())
}

// LocalSide returns the engine's working directory as a comparison side.
func (e *Engine) LocalSide() Side {
	return LocalSide(e.local)
}

// RemoteSide returns the engine's hub store as a comparison side.
func (e *Engine) RemoteSide() Side {
	return RemoteSide(e.remote, e.opts.PageSize)
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func idItems(ids []string) []manifest.Item {
	if len(ids) == 0 {
		return nil
	}
	items := make([]manifest.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, manifest.Item{ID: id})
	}
	return items
}

package sync

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/manifest"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
)

// ListLocal returns the names of local items. While a read manifest is
// active only the items it selects are listed; a kind without a section
// lists nothing.
func (e *Engine) ListLocal(ctx context.Context, sess *Session, opts ListOptions) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names, err := e.localNames(sess)
	if err != nil {
		return nil, err
	}
	if opts.Path == "" && (opts.Status == model.StatusAll || !e.desc.DraftReady) {
		return names, nil
	}

	logger := e.logger(sess)
	filtered := make([]string, 0, len(names))
	for _, name := range names {
		item, err := e.local.Get(name)
		if err != nil {
			logger.Warn("skipping unreadable item", logging.Item(name), logging.Err(err))
			continue
		}
		if e.matches(item, opts) {
			filtered = append(filtered, name)
		}
	}
	return filtered, nil
}

// ListLocalModified returns the names of local items that are new or changed
// since the last sync, plus the names of synchronized items whose file was
// deleted.
func (e *Engine) ListLocalModified(ctx context.Context, sess *Session, opts ListOptions) ([]string, error) {
	names, err := e.ListLocal(ctx, sess, opts)
	if err != nil {
		return nil, err
	}

	var selected map[string]bool
	if e.manifestSection(sess) != nil {
		selected = make(map[string]bool, len(names))
		for _, name := range names {
			selected[name] = true
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, name := range names {
		if e.ledger.IsLocalModified(model.FlagNew|model.FlagModified, e.local.PathOf(name)) {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, entry := range e.ledger.Missing() {
		name := e.local.NameOf(entry.Path)
		if seen[name] || (selected != nil && !selected[name]) {
			continue
		}
		if opts.Path != "" && !strings.HasPrefix("/"+name, opts.Path) {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ListRemote returns every hub item matching opts. Listed items are recorded
// in the write manifest.
func (e *Engine) ListRemote(ctx context.Context, sess *Session, opts ListOptions) ([]model.Artifact, error) {
	var items []model.Artifact
	err := e.eachPage(ctx, sess, e.statusFilter(opts.Status), e.remote.ListAll, func(page []model.Artifact) {
		for _, it := range page {
			if e.matches(it, opts) {
				items = append(items, it)
			}
		}
	})
	e.recordItems(sess, items)
	return items, err
}

// ListRemoteModified returns hub items changed since the last pull that the
// ledger does not already know about.
func (e *Engine) ListRemoteModified(ctx context.Context, sess *Session, opts ListOptions) ([]model.Artifact, error) {
	filter := e.statusFilter(opts.Status)
	var items []model.Artifact
	err := e.eachPage(ctx, sess, filter, e.modifiedSince(filter), func(page []model.Artifact) {
		for _, it := range page {
			if e.matches(it, opts) && e.remoteChanged(it) {
				items = append(items, it)
			}
		}
	})
	e.recordItems(sess, items)
	return items, err
}

func (e *Engine) localNames(sess *Session) ([]string, error) {
	sec := e.manifestSection(sess)
	if sec == nil {
		return e.local.ListNames()
	}

	logger := e.logger(sess)
	seen := make(map[string]bool, len(sec))
	names := make([]string, 0, len(sec))
	for _, it := range sec {
		name := e.manifestName(it)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if !e.local.Exists(e.local.PathOf(name)) {
			logger.Debug("manifest item has no local file", logging.Item(name))
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// manifestSection returns the read manifest section of the kind, an empty
// section when the manifest does not mention the kind, or nil when no read
// manifest is active.
func (e *Engine) manifestSection(sess *Session) map[string]manifest.Item {
	if sess.Manifest == nil || !sess.Manifest.Active() {
		return nil
	}
	if sec := sess.Manifest.Section(e.desc.Kind); sec != nil {
		return sec
	}
	return map[string]manifest.Item{}
}

// manifestSelection returns the ids and local names selected by the read
// manifest, or nil when no read manifest is active.
func (e *Engine) manifestSelection(sess *Session) map[string]bool {
	sec := e.manifestSection(sess)
	if sec == nil {
		return nil
	}
	set := make(map[string]bool, 2*len(sec))
	for _, it := range sec {
		if it.ID != "" {
			set[it.ID] = true
		}
		if name := e.manifestName(it); name != "" {
			set[name] = true
		}
	}
	return set
}

func (e *Engine) selected(set map[string]bool, it model.Artifact) bool {
	if set == nil || set[it.ID()] {
		return true
	}
	return e.local.PathBased() && set[strings.Trim(it.Path(), "/")]
}

// manifestName maps a manifest entry to the local name it is stored under.
func (e *Engine) manifestName(it manifest.Item) string {
	if e.local.PathBased() {
		if p := strings.Trim(it.Path, "/"); p != "" {
			return p
		}
	}
	return it.ID
}

func (e *Engine) modifiedSince(filter model.StatusFilter) pageFunc {
	since := e.ledger.LastPull(filter)
	return func(ctx context.Context, opts remote.PageOptions) (remote.Page, error) {
		return e.remote.ListModifiedSince(ctx, since, opts)
	}
}

func (e *Engine) remoteChanged(it model.Artifact) bool {
	return e.ledger.IsRemoteModified(model.FlagNew|model.FlagModified, it, e.local.ItemPath(it))
}

// statusFilter drops the filter for kinds without a status.
func (e *Engine) statusFilter(f model.StatusFilter) model.StatusFilter {
	if !e.desc.DraftReady {
		return model.StatusAll
	}
	return f
}

func (e *Engine) now() time.Time {
	return e.opts.Clock()
}

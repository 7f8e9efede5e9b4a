package sync

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/klauern/hubsync/internal/backup"
	"github.com/klauern/hubsync/internal/ledger"
	"github.com/klauern/hubsync/internal/local"
	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/manifest"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
)

const (
	// DefaultConcurrency bounds in-flight transfers of a batch.
	DefaultConcurrency = 5
	// DefaultPageSize is requested from the hub when listing.
	DefaultPageSize = 100
)

// Options configures an Engine.
type Options struct {
	// Concurrency bounds in-flight transfers. Defaults to DefaultConcurrency.
	Concurrency int
	// PageSize is the listing chunk size. Defaults to DefaultPageSize.
	PageSize int
	// RewriteOnPush saves the hub's response over the local file after a push.
	// Newly created items are always rewritten so they learn their id.
	RewriteOnPush bool
	// SaveConflicts writes the hub's version next to a conflicting file.
	SaveConflicts bool
	// TrackDeletions reports local items missing from the hub on full pulls.
	TrackDeletions bool
	// Backups, when set, receives a copy of every local file with unpushed
	// edits before a pull overwrites or removes it.
	Backups *backup.Store
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// ListOptions narrows list, push and pull operations.
type ListOptions struct {
	// Status selects draft or ready items for kinds that carry a status.
	Status model.StatusFilter
	// Path keeps only items whose path starts with this prefix. Pulls with a
	// path filter never advance the watermark.
	Path string
}

// Engine synchronizes one artifact kind between a working directory and the hub.
type Engine struct {
	desc   Descriptor
	local  *local.Store
	remote remote.Store
	ledger *ledger.Ledger
	opts   Options
}

// New creates an engine. The ledger must be opened on the local store's filesystem.
func New(desc Descriptor, localStore *local.Store, remoteStore remote.Store, l *ledger.Ledger, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		desc:   desc,
		local:  localStore,
		remote: remoteStore,
		ledger: l,
		opts:   opts,
	}
}

// Kind returns the artifact kind handled by the engine.
func (e *Engine) Kind() model.Kind {
	return e.desc.Kind
}

// Descriptor returns the engine's descriptor.
func (e *Engine) Descriptor() Descriptor {
	return e.desc
}

// Local returns the engine's working directory store.
func (e *Engine) Local() *local.Store {
	return e.local
}

// Remote returns the engine's hub store.
func (e *Engine) Remote() remote.Store {
	return e.remote
}

// Ledger returns the engine's change ledger.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

func (e *Engine) logger(sess *Session) *slog.Logger {
	return sess.Logger.With(logging.Kind(string(e.desc.Kind)))
}

// pageFunc fetches one chunk of a listing.
type pageFunc func(ctx context.Context, opts remote.PageOptions) (remote.Page, error)

// eachPage walks a chunked listing, handing every page to handle. A failure
// on the first page is returned as is; later failures are counted on the
// session and end the walk.
func (e *Engine) eachPage(ctx context.Context, sess *Session, status model.StatusFilter, fetch pageFunc, handle func([]model.Artifact)) error {
	logger := e.logger(sess)
	opts := remote.PageOptions{Limit: e.opts.PageSize, Status: status}
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := fetch(ctx, opts)
		if err != nil {
			if page > 0 {
				sess.addError()
			}
			return sess.logOnce(logger, "failed to list items", err, slog.Int("page", page))
		}
		handle(p.Items)
		if p.Continuation == "" {
			return nil
		}
		opts.Continuation = p.Continuation
	}
}

// matches applies the status and path filters of opts.
func (e *Engine) matches(item model.Artifact, opts ListOptions) bool {
	if e.desc.DraftReady && !opts.Status.Matches(item.Status()) {
		return false
	}
	if opts.Path != "" && !strings.HasPrefix(item.Path(), opts.Path) {
		return false
	}
	return true
}

// recordItems adds projections of items to the write manifest.
func (e *Engine) recordItems(sess *Session, items []model.Artifact) {
	if sess.Manifest == nil || len(items) == 0 {
		return
	}
	projected := make([]manifest.Item, 0, len(items))
	for _, it := range items {
		projected = append(projected, manifest.ItemFrom(e.desc.Kind, it))
	}
	sess.Manifest.UpdateSection(e.desc.Kind, projected)
}

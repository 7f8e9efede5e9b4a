package sync

import (
	"context"
	"log/slog"

	"github.com/klauern/hubsync/internal/diff"
	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/remote"
	"github.com/klauern/hubsync/internal/validation"
)

// PushItem sends one local item to the hub and records the result in the
// ledger. A rejected update is compared with the hub's current version; when
// they only differ in ignored fields the push counts as done.
func (e *Engine) PushItem(ctx context.Context, sess *Session, name string) (model.Artifact, error) {
	logger := e.logger(sess).With(logging.Item(name))
	filePath := e.local.PathOf(name)

	item, err := e.local.Get(name)
	if err != nil {
		return nil, e.pushFailed(sess, logger, name, err)
	}
	if err := e.canPush(item); err != nil {
		return nil, e.pushFailed(sess, logger, name, err)
	}

	outgoing := item.Clone()
	if e.desc.PrepareForPush != nil {
		outgoing = e.desc.PrepareForPush(outgoing)
	}
	if entry, ok := e.ledger.Entry(outgoing.ID()); ok && entry.Rev != "" {
		outgoing[model.FieldRev] = entry.Rev
	}

	pushed, err := e.send(ctx, outgoing)
	if err != nil {
		return e.pushRejected(ctx, sess, logger, name, filePath, outgoing, err)
	}
	return e.pushDone(sess, logger, name, filePath, item, pushed)
}

// PushNames pushes the named items. Failed items are reported through the
// session; the returned slice holds what the hub accepted.
func (e *Engine) PushNames(ctx context.Context, sess *Session, names []string) ([]model.Artifact, error) {
	logger := e.logger(sess)
	timer := logging.StartTimer(logger, "push")

	pushed := runRounds(ctx, sess, e.opts.Concurrency, names,
		func(ctx context.Context, name string) (model.Artifact, error) {
			return e.PushItem(ctx, sess, name)
		},
		func(name string, err error) {
			_ = e.pushFailed(sess, logger.With(logging.Item(name)), name, err)
		},
	)

	e.recordItems(sess, pushed)
	timer.Stop(logging.Count(len(pushed)), slog.Int("requested", len(names)))
	return pushed, ctx.Err()
}

// PushAll pushes every local item matching opts.
func (e *Engine) PushAll(ctx context.Context, sess *Session, opts ListOptions) ([]model.Artifact, error) {
	names, err := e.ListLocal(ctx, sess, opts)
	if err != nil {
		return nil, err
	}
	return e.pushAndMark(ctx, sess, opts, names)
}

// PushModified pushes local items that are new or changed since the last sync.
// Deleted files are not pushed.
func (e *Engine) PushModified(ctx context.Context, sess *Session, opts ListOptions) ([]model.Artifact, error) {
	names, err := e.ListLocalModified(ctx, sess, opts)
	if err != nil {
		return nil, err
	}
	existing := names[:0:0]
	for _, name := range names {
		if e.local.Exists(e.local.PathOf(name)) {
			existing = append(existing, name)
		}
	}
	return e.pushAndMark(ctx, sess, opts, existing)
}

func (e *Engine) pushAndMark(ctx context.Context, sess *Session, opts ListOptions, names []string) ([]model.Artifact, error) {
	start := e.now()
	before := sess.ErrorCount()

	pushed, err := e.PushNames(ctx, sess, names)
	if err == nil && opts.Path == "" && e.manifestSection(sess) == nil && sess.ErrorCount() == before {
		e.ledger.SetLastPush(e.statusFilter(opts.Status), start)
	}
	return pushed, err
}

// send updates items the hub already knows and creates the rest. An update
// answered with 404 falls back to a create.
func (e *Engine) send(ctx context.Context, item model.Artifact) (model.Artifact, error) {
	caps := e.remote.Capabilities()
	if item.ID() != "" && !caps.CreateOnly && (item.Rev() != "" || caps.ForceOverride) {
		pushed, err := e.remote.Update(ctx, item)
		if !remote.IsNotFound(err) {
			return pushed, err
		}
		item = item.Without(model.FieldRev)
	}
	return e.remote.Create(ctx, item)
}

// pushDone saves the hub's response when needed and records it in the ledger.
func (e *Engine) pushDone(sess *Session, logger *slog.Logger, name, filePath string, item, pushed model.Artifact) (model.Artifact, error) {
	saved := filePath
	if e.opts.RewriteOnPush || item.ID() == "" {
		p, err := e.local.Save(pushed)
		if err != nil {
			return nil, e.pushFailed(sess, logger, name, err)
		}
		if p != filePath {
			if err := e.local.Remove(filePath); err != nil {
				logger.Warn("failed to remove original file", logging.Path(filePath), logging.Err(err))
			}
		}
		saved = p
	}

	e.ledger.Update(saved, pushed)
	sess.clearRetry(name)
	logger.Debug("pushed item", logging.Path(saved), slog.String("rev", pushed.Rev()))
	sess.Observer.Pushed(e.desc.Kind, name, pushed)
	return pushed, nil
}

// pushRejected classifies a failed push: absorbed conflict, real conflict,
// retryable or final failure.
func (e *Engine) pushRejected(ctx context.Context, sess *Session, logger *slog.Logger, name, filePath string, item model.Artifact, err error) (model.Artifact, error) {
	if remote.IsConflict(err) && item.ID() != "" {
		current, gerr := e.remote.Get(ctx, item.ID())
		if gerr == nil {
			d := diff.Compare(item, current, e.desc.ignoreKeys())
			if d.Empty() {
				logger.Debug("hub version only differs in ignored fields")
				return e.pushDone(sess, logger, name, filePath, item, current)
			}

			cerr := &ConflictError{Kind: e.desc.Kind, Name: name, ID: item.ID(), Diff: d, Err: err}
			if e.opts.SaveConflicts {
				if p, serr := e.local.SaveConflict(current); serr != nil {
					logger.Warn("failed to save conflicting version", logging.Err(serr))
				} else {
					cerr.ConflictPath = p
				}
			}
			return nil, e.pushFailed(sess, logger, name, cerr)
		}
		logger.Debug("failed to fetch conflicting item", logging.Err(gerr))
	}

	if e.desc.retryable(err) {
		sess.markRetry(name, err)
		logger.Debug("push failed, marked for retry", logging.Err(err))
		return nil, err
	}
	return nil, e.pushFailed(sess, logger, name, err)
}

// pushFailed counts, logs and reports a final push failure.
func (e *Engine) pushFailed(sess *Session, logger *slog.Logger, name string, err error) error {
	sess.addError()
	logged := sess.logOnce(logger, "failed to push item", err)
	sess.Observer.PushError(e.desc.Kind, name, err)
	return logged
}

func (e *Engine) canPush(item model.Artifact) error {
	if err := validation.CanPushItem(item); err != nil {
		return err
	}
	if e.desc.CanPush != nil {
		return e.desc.CanPush(item)
	}
	return nil
}

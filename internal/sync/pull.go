package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-git/go-billy/v5/util"

	"github.com/klauern/hubsync/internal/backup"
	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/model"
	"github.com/klauern/hubsync/internal/throttle"
	"github.com/klauern/hubsync/internal/validation"
)

// PullResult is the outcome of a listing pull.
type PullResult struct {
	// Pulled holds the items saved to the working directory.
	Pulled []model.Artifact
	// LocalOnly names local items the hub no longer lists. Only filled when
	// deletion tracking is enabled.
	LocalOnly []string
}

// PullItem fetches one item and saves it to the working directory.
func (e *Engine) PullItem(ctx context.Context, sess *Session, id string) (model.Artifact, error) {
	logger := e.logger(sess).With(logging.Item(id))
	item, err := e.remote.Get(ctx, id)
	if err != nil {
		return nil, e.pullFailed(sess, logger, id, err)
	}
	if _, err := e.save(sess, logger, item); err != nil {
		return nil, err
	}
	return item, nil
}

// PullIDs fetches and saves the given items.
func (e *Engine) PullIDs(ctx context.Context, sess *Session, ids []string) ([]model.Artifact, error) {
	tasks := make([]throttle.Task[model.Artifact], len(ids))
	for i, id := range ids {
		tasks[i] = func(ctx context.Context) (model.Artifact, error) {
			return e.PullItem(ctx, sess, id)
		}
	}
	outcomes := throttle.Run(ctx, tasks, e.opts.Concurrency)
	logger := e.logger(sess)
	for i, o := range outcomes {
		if !o.Fulfilled() && !alreadyLogged(o.Err) {
			_ = e.pullFailed(sess, logger.With(logging.Item(ids[i])), ids[i], o.Err)
		}
	}
	pulled := throttle.Values(outcomes)
	e.recordItems(sess, pulled)
	return pulled, ctx.Err()
}

// PullAll saves every hub item matching opts. While a read manifest is
// active only the items it selects are saved.
func (e *Engine) PullAll(ctx context.Context, sess *Session, opts ListOptions) (PullResult, error) {
	return e.pull(ctx, sess, opts, false)
}

// PullModified saves hub items changed since the last pull.
func (e *Engine) PullModified(ctx context.Context, sess *Session, opts ListOptions) (PullResult, error) {
	return e.pull(ctx, sess, opts, true)
}

func (e *Engine) pull(ctx context.Context, sess *Session, opts ListOptions, modified bool) (PullResult, error) {
	logger := e.logger(sess)
	timer := logging.StartTimer(logger, "pull")
	filter := e.statusFilter(opts.Status)
	selection := e.manifestSelection(sess)
	scoped := opts.Path != "" || selection != nil
	track := e.opts.TrackDeletions && !scoped

	// Captured before listing so changes made during the run are seen next time.
	start := e.now()
	before := sess.ErrorCount()

	fetch := pageFunc(e.remote.ListAll)
	if modified {
		fetch = e.modifiedSince(filter)
	}

	var result PullResult
	listed := make(map[string]bool)
	err := e.eachPage(ctx, sess, filter, fetch, func(page []model.Artifact) {
		var batch []model.Artifact
		for _, it := range page {
			if !e.matches(it, opts) || !e.selected(selection, it) {
				continue
			}
			listed[it.ID()] = true
			if modified && !e.remoteChanged(it) {
				continue
			}
			batch = append(batch, it)
		}
		result.Pulled = append(result.Pulled, e.saveAll(ctx, sess, logger, batch)...)
	})

	if track && err == nil {
		remoteIDs := listed
		if modified {
			remoteIDs, err = e.remoteIDs(ctx, sess, filter)
		}
		if err == nil {
			result.LocalOnly = e.localOnly(sess, remoteIDs, filter)
		}
	}

	if err == nil && !scoped && sess.ErrorCount() == before {
		e.ledger.SetLastPull(filter, start)
	} else {
		logger.Debug("pull watermark left unchanged",
			slog.Int("errors", sess.ErrorCount()-before), slog.Bool("scoped", scoped))
	}

	e.recordItems(sess, result.Pulled)
	timer.Stop(logging.Count(len(result.Pulled)))
	return result, err
}

// saveAll saves a listed chunk through the throttle and returns the items saved.
func (e *Engine) saveAll(ctx context.Context, sess *Session, logger *slog.Logger, batch []model.Artifact) []model.Artifact {
	if len(batch) == 0 {
		return nil
	}
	tasks := make([]throttle.Task[model.Artifact], len(batch))
	for i, it := range batch {
		tasks[i] = func(context.Context) (model.Artifact, error) {
			if _, err := e.save(sess, logger.With(logging.Item(it.ID())), it); err != nil {
				return nil, err
			}
			return it, nil
		}
	}
	outcomes := throttle.Run(ctx, tasks, e.opts.Concurrency)
	for i, o := range outcomes {
		if !o.Fulfilled() && !alreadyLogged(o.Err) {
			id := batch[i].ID()
			_ = e.pullFailed(sess, logger.With(logging.Item(id)), id, o.Err)
		}
	}
	return throttle.Values(outcomes)
}

// save writes a hub item to its file and records it in the ledger. Path-based
// items renamed on the hub have their old file removed.
func (e *Engine) save(sess *Session, logger *slog.Logger, item model.Artifact) (string, error) {
	if err := e.canPull(item); err != nil {
		return "", e.pullFailed(sess, logger, item.ID(), err)
	}

	target := e.local.ItemPath(item)
	if e.local.PathBased() {
		if old := e.ledger.FilePath(item.ID()); old != "" && old != target {
			if err := e.preserve(logger, old, item); err != nil {
				return "", e.pullFailed(sess, logger, item.ID(), err)
			}
			if err := e.local.Remove(old); err != nil {
				logger.Warn("failed to remove renamed file", logging.Path(old), logging.Err(err))
			} else {
				logger.Info("item moved on the hub", slog.String("from", old), slog.String("to", target))
			}
			e.ledger.SetFilePath(item.ID(), target)
		}
	}

	if err := e.preserve(logger, target, item); err != nil {
		return "", e.pullFailed(sess, logger, item.ID(), err)
	}
	p, err := e.local.Save(item)
	if err != nil {
		return "", e.pullFailed(sess, logger, item.ID(), err)
	}
	e.ledger.Update(p, item)

	logger.Debug("pulled item", logging.Path(p), slog.String("rev", item.Rev()))
	sess.Observer.Pulled(e.desc.Kind, item, p)
	sess.Observer.PostProcess(e.desc.Kind, item, p)
	return p, nil
}

// preserve backs up the file at p when it holds edits the ledger has not
// seen. Nothing happens without a backup store or a file.
func (e *Engine) preserve(logger *slog.Logger, p string, item model.Artifact) error {
	if e.opts.Backups == nil || p == "" || !e.local.Exists(p) {
		return nil
	}
	if !e.ledger.IsLocalModified(model.FlagNew|model.FlagModified, p) {
		return nil
	}
	data, err := util.ReadFile(e.local.Filesystem(), p)
	if err != nil {
		return fmt.Errorf("reading %s for backup: %w", p, err)
	}
	b, err := e.opts.Backups.Create(data, backup.Options{
		Kind:        e.desc.Kind,
		Source:      p,
		Description: "local edits replaced by pull",
		Metadata:    map[string]string{"id": item.ID(), "rev": item.Rev()},
	})
	if err != nil {
		return fmt.Errorf("backing up %s: %w", p, err)
	}
	logger.Info("backed up local edits", logging.Path(p), slog.String("backup", b.ID))
	return nil
}

// remoteIDs lists the ids of every hub item matching filter.
func (e *Engine) remoteIDs(ctx context.Context, sess *Session, filter model.StatusFilter) (map[string]bool, error) {
	ids := make(map[string]bool)
	err := e.eachPage(ctx, sess, filter, e.remote.ListAll, func(page []model.Artifact) {
		for _, it := range page {
			ids[it.ID()] = true
		}
	})
	return ids, err
}

// localOnly reports local items whose id the hub did not list.
func (e *Engine) localOnly(sess *Session, remoteIDs map[string]bool, filter model.StatusFilter) []string {
	logger := e.logger(sess)
	names, err := e.local.ListNames()
	if err != nil {
		logger.Warn("failed to list local items for deletion tracking", logging.Err(err))
		return nil
	}

	var out []string
	for _, name := range names {
		item, err := e.local.Get(name)
		if err != nil || item.ID() == "" {
			continue
		}
		if e.desc.DraftReady && !filter.Matches(item.Status()) {
			continue
		}
		if remoteIDs[item.ID()] {
			continue
		}
		out = append(out, name)
		logger.Info("local item is no longer on the hub", logging.Item(name))
		sess.Observer.LocalOnly(e.desc.Kind, name)
	}
	return out
}

// pullFailed counts, logs and reports a pull failure.
func (e *Engine) pullFailed(sess *Session, logger *slog.Logger, id string, err error) error {
	sess.addError()
	logged := sess.logOnce(logger, "failed to pull item", err)
	sess.Observer.PullError(e.desc.Kind, id, err)
	return logged
}

func (e *Engine) canPull(item model.Artifact) error {
	if err := validation.CanPullItem(item); err != nil {
		return err
	}
	if e.desc.CanPull != nil {
		return e.desc.CanPull(item)
	}
	return nil
}

package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/manifest"
	"github.com/klauern/hubsync/internal/remote"
)

// DeleteRemote deletes items from the hub and forgets them in the ledger.
// Items already gone count as deleted. Retryable failures are repeated while
// rounds make progress, as with pushes.
func (e *Engine) DeleteRemote(ctx context.Context, sess *Session, ids []string) ([]string, error) {
	logger := e.logger(sess)
	if e.desc.Immutable {
		err := fmt.Errorf("%s: %w", e.desc.Kind, ErrDeleteNotSupported)
		logger.Error("refusing to delete items of an immutable kind", logging.Count(len(ids)))
		return nil, err
	}

	timer := logging.StartTimer(logger, "delete")
	deleted := runRounds(ctx, sess, e.opts.Concurrency, ids,
		func(ctx context.Context, id string) (string, error) {
			return id, e.deleteItem(ctx, sess, logger.With(logging.Item(id)), id)
		},
		func(id string, err error) {
			_ = e.deleteFailed(sess, logger.With(logging.Item(id)), id, err)
		},
	)

	if sess.Manifest != nil && len(deleted) > 0 {
		items := make([]manifest.Item, 0, len(deleted))
		for _, id := range deleted {
			items = append(items, manifest.Item{ID: id})
		}
		sess.Manifest.UpdateDeletionsSection(e.desc.Kind, items)
	}
	timer.Stop(logging.Count(len(deleted)))
	return deleted, ctx.Err()
}

func (e *Engine) deleteItem(ctx context.Context, sess *Session, logger *slog.Logger, id string) error {
	err := e.remote.Delete(ctx, id)
	switch {
	case err == nil:
	case remote.IsNotFound(err):
		logger.Debug("item already deleted on the hub")
	case e.desc.retryable(err):
		sess.markRetry(id, err)
		logger.Debug("delete failed, marked for retry", logging.Err(err))
		return err
	default:
		return e.deleteFailed(sess, logger, id, err)
	}

	e.ledger.Remove(id)
	sess.clearRetry(id)
	sess.Observer.Deleted(e.desc.Kind, id)
	return nil
}

func (e *Engine) deleteFailed(sess *Session, logger *slog.Logger, id string, err error) error {
	sess.addError()
	logged := sess.logOnce(logger, "failed to delete item", err)
	sess.Observer.PushError(e.desc.Kind, id, err)
	return logged
}

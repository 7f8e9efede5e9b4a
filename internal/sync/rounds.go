package sync

import (
	"context"

	"github.com/klauern/hubsync/internal/throttle"
)

// runRounds runs do for every key through the throttle. Keys whose attempt
// marked them for retry on the session run again in a further round, as long
// as the previous round completed at least one key. Keys that are never
// completed and were not reported by do are handed to giveUp.
func runRounds[T any](ctx context.Context, sess *Session, limit int, keys []string,
	do func(ctx context.Context, key string) (T, error),
	giveUp func(key string, err error),
) []T {
	var done []T
	pending := keys
	for round := 1; len(pending) > 0; round++ {
		for _, key := range pending {
			sess.clearRetry(key)
		}

		tasks := make([]throttle.Task[T], len(pending))
		for i, key := range pending {
			tasks[i] = func(ctx context.Context) (T, error) {
				return do(ctx, key)
			}
		}
		outcomes := throttle.Run(ctx, tasks, limit)

		var retry []string
		progress := 0
		for i, o := range outcomes {
			key := pending[i]
			switch {
			case o.Fulfilled():
				progress++
				done = append(done, o.Value)
			case isMarked(sess, key):
				retry = append(retry, key)
			case !alreadyLogged(o.Err):
				giveUp(key, o.Err)
			}
		}
		if len(retry) == 0 {
			break
		}
		if progress == 0 || ctx.Err() != nil {
			sess.Logger.Debug("no progress, giving up on retryable items", "round", round, "remaining", len(retry))
			for _, key := range retry {
				err, _ := sess.retryErr(key)
				sess.clearRetry(key)
				giveUp(key, err)
			}
			break
		}
		sess.Logger.Debug("retrying items", "round", round+1, "remaining", len(retry))
		pending = retry
	}
	return done
}

func isMarked(sess *Session, key string) bool {
	_, ok := sess.retryErr(key)
	return ok
}

// Package sync moves artifacts between a working directory and the content
// hub. One Engine handles one artifact kind; its behavior is shaped by a
// Descriptor rather than by per-kind types.
//
// # Operations
//
// The engine supports:
//   - Listing local, locally modified, remote and remotely modified items
//   - Pushing named items, everything, or only what changed since the last sync
//   - Pulling by id, everything, or only what changed since the last pull
//   - Deleting remote items
//   - Comparing any two sides (local, remote, manifest) item by item
//
// Every operation takes a *Session carrying the logger, the Observer that
// receives per-item events, the optional manifest store and the error count
// of the run:
//
//	sess := sync.NewSession(sync.SessionOptions{Observer: recorder})
//	defer sess.Close()
//
//	pushed, err := engine.PushModified(ctx, sess, sync.ListOptions{})
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("pushed %d, failed %d\n", len(pushed), sess.ErrorCount())
//
// # Partial Failure
//
// Batch operations never stop at the first failed item. Failures are logged,
// counted on the session and reported through Observer.PushError or
// Observer.PullError. Pushes failing with an error the Descriptor considers
// retryable are attempted again in a further round, as long as the previous
// round pushed at least one item.
//
// # Change Tracking
//
// The ledger records rev, content hash and mtime of every synchronized file.
// Pull watermarks only advance after a run without errors, to the time
// captured before the listing began.
package sync

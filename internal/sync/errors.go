package sync

import (
	"errors"
	"fmt"

	"github.com/klauern/hubsync/internal/diff"
	"github.com/klauern/hubsync/internal/model"
)

// ErrDeleteNotSupported is returned when deleting items of an immutable kind.
var ErrDeleteNotSupported = errors.New("delete not supported")

// ConflictError reports a push rejected because the hub holds a different
// version of the item.
type ConflictError struct {
	Kind model.Kind
	Name string
	ID   string
	// Diff compares the local item with the hub's current version.
	Diff diff.Result
	// ConflictPath is the sidecar file holding the hub's version, if saved.
	ConflictPath string
	Err          error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict pushing %s %s: %d differences with the hub", e.Kind, e.Name, e.Diff.Count())
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

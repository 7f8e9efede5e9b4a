// Package remote talks to the content hub.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/klauern/hubsync/internal/model"
)

// ErrNotSupported is returned for operations outside a store's capabilities.
var ErrNotSupported = errors.New("operation not supported")

// Capabilities describe optional behavior of a store.
type Capabilities struct {
	// ForceOverride lets updates skip the revision check.
	ForceOverride bool
	// ItemByPath enables GetByPath.
	ItemByPath bool
	// Tags marks kinds whose items carry tags.
	Tags bool
	// CreateOnly stores accept creates but never updates.
	CreateOnly bool
}

// PageOptions bounds one list request.
type PageOptions struct {
	// Limit is the page size; 0 lets the server choose.
	Limit int
	// Continuation resumes a previous listing.
	Continuation string
	// Status narrows the listing to draft or ready items.
	Status model.StatusFilter
}

// Page is one chunk of a listing.
type Page struct {
	Items        []model.Artifact `json:"items"`
	Continuation string           `json:"continuation,omitempty"`
}

// Store is the content hub API for one artifact kind.
type Store interface {
	Kind() model.Kind
	Capabilities() Capabilities
	Create(ctx context.Context, item model.Artifact) (model.Artifact, error)
	Update(ctx context.Context, item model.Artifact) (model.Artifact, error)
	Get(ctx context.Context, id string) (model.Artifact, error)
	GetByPath(ctx context.Context, path string) (model.Artifact, error)
	ListAll(ctx context.Context, opts PageOptions) (Page, error)
	ListModifiedSince(ctx context.Context, since time.Time, opts PageOptions) (Page, error)
	Delete(ctx context.Context, id string) error
}

// Error is a failed request to the content hub.
type Error struct {
	StatusCode int
	Message    string
	// Retry is set when the request may succeed if repeated.
	Retry bool
}

// NewError builds an Error, marking transient status codes as retryable.
func NewError(status int, msg string) *Error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{StatusCode: status, Message: msg, Retry: transientStatus(status)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("content hub returned %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsNotFound reports a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsConflict reports a 409 response.
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsTransient reports errors worth repeating: timeouts, throttling and 5xx.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retry || transientStatus(e.StatusCode)
	}
	return false
}

func transientStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}

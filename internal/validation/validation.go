// Package validation provides shape guards for artifacts and checks for
// user-supplied settings.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/klauern/hubsync/internal/model"
)

// ErrInvalidArtifact marks artifacts rejected by a shape guard.
var ErrInvalidArtifact = errors.New("invalid artifact")

// Error represents a validation failure with context.
type Error struct {
	// Field is the name of the field or component that failed validation
	Field string
	// Message describes the validation failure
	Message string
	// Err is the underlying error (if any)
	Err error
}

// Error returns a formatted validation error message.
func (ve *Error) Error() string {
	if ve.Err != nil {
		return fmt.Sprintf("validation failed for %q: %s: %v", ve.Field, ve.Message, ve.Err)
	}
	return fmt.Sprintf("validation failed for %q: %s", ve.Field, ve.Message)
}

// Unwrap returns the underlying error for errors.Is/As.
func (ve *Error) Unwrap() error {
	return ve.Err
}

// Errors collects multiple validation errors.
type Errors []error

// Error returns a formatted error message for all validation failures.
func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}
	return fmt.Sprintf("%d validation errors:\n- %s", len(ve), errors.Join(ve...))
}

// Unwrap exposes the individual failures to errors.Is/As.
func (ve Errors) Unwrap() []error {
	return ve
}

// Result contains the outcome of a set of checks.
type Result struct {
	// Warnings contains non-fatal issues
	Warnings []string
	// Errors contains failures that prevent the operation
	Errors []error
}

// Valid reports whether no check failed.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// AddError adds an error to the result. Nil errors are ignored.
func (r *Result) AddError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

// AddWarning adds a warning to the result.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Err returns the combined error, or nil.
func (r *Result) Err() error {
	switch len(r.Errors) {
	case 0:
		return nil
	case 1:
		return r.Errors[0]
	default:
		return Errors(r.Errors)
	}
}

// CanPushItem checks that a local artifact can be sent to the hub. New items
// need a name or path; existing items need an id.
func CanPushItem(item model.Artifact) error {
	if item == nil {
		return &Error{Field: "item", Message: "is empty", Err: ErrInvalidArtifact}
	}
	if item.ID() == "" && item.Name() == "" && item.Path() == "" {
		return &Error{Field: "item", Message: "has no id, name or path", Err: ErrInvalidArtifact}
	}
	if _, ok := item[model.FieldID]; ok && item.ID() == "" {
		return &Error{Field: model.FieldID, Message: "must be a non-empty string", Err: ErrInvalidArtifact}
	}
	if s, ok := item[model.FieldStatus]; ok {
		if status, _ := s.(string); status != string(model.StatusDraft) && status != string(model.StatusReady) {
			return &Error{Field: model.FieldStatus, Message: fmt.Sprintf("unknown status %v", s), Err: ErrInvalidArtifact}
		}
	}
	return nil
}

// CanPullItem checks that a remote response is an artifact worth saving.
func CanPullItem(item model.Artifact) error {
	if item == nil {
		return &Error{Field: "item", Message: "is not an object", Err: ErrInvalidArtifact}
	}
	if item.ID() == "" {
		return &Error{Field: model.FieldID, Message: "is missing", Err: ErrInvalidArtifact}
	}
	return nil
}

// ServerURL checks that u is an absolute http(s) URL.
func ServerURL(u string) error {
	if strings.TrimSpace(u) == "" {
		return &Error{Field: "server.url", Message: "is required"}
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return &Error{Field: "server.url", Message: "is not a URL", Err: err}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &Error{Field: "server.url", Message: "must use http or https"}
	}
	if parsed.Host == "" {
		return &Error{Field: "server.url", Message: "has no host"}
	}
	return nil
}

// Positive checks that n is greater than zero.
func Positive(field string, n int) error {
	if n <= 0 {
		return &Error{Field: field, Message: fmt.Sprintf("must be positive, got %d", n)}
	}
	return nil
}

// FlushSetting checks a ledger coalescing value: -1 or a positive number.
func FlushSetting(field string, n int) error {
	if n == -1 || n > 0 {
		return nil
	}
	return &Error{Field: field, Message: fmt.Sprintf("must be -1 or positive, got %d", n)}
}

// OneOf checks that v is one of the allowed values.
func OneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return &Error{Field: field, Message: fmt.Sprintf("must be one of %s, got %q", strings.Join(allowed, ", "), v)}
}

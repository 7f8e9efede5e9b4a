package sync

import (
	"errors"
	"log/slog"
	gosync "sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/klauern/hubsync/internal/logging"
	"github.com/klauern/hubsync/internal/manifest"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	// Logger defaults to logging.Default().
	Logger *slog.Logger
	// Observer defaults to Nop.
	Observer Observer
	// Manifest enables manifest driven listing and recording. Optional.
	Manifest *manifest.Store
}

// Session is the state of one top-level operation.
type Session struct {
	ID       string
	Logger   *slog.Logger
	Observer Observer
	Manifest *manifest.Store

	errors atomic.Int64

	mu    gosync.Mutex
	retry map[string]error
}

// NewSession starts a session with a fresh id.
func NewSession(opts SessionOptions) *Session {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = Nop
	}
	return &Session{
		ID:       id,
		Logger:   logger.With(logging.Session(id)),
		Observer: observer,
		Manifest: opts.Manifest,
		retry:    make(map[string]error),
	}
}

// ErrorCount returns the number of item failures reported so far.
func (s *Session) ErrorCount() int {
	return int(s.errors.Load())
}

// Close drops pending retry marks and resets the error count.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.retry)
	s.errors.Store(0)
}

func (s *Session) addError() {
	s.errors.Add(1)
}

func (s *Session) markRetry(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry[key] = err
}

func (s *Session) clearRetry(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retry, key)
}

// retryErr returns the error a key was marked with.
func (s *Session) retryErr(key string) (error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.retry[key]
	return err, ok
}

// loggedError marks an error that was already written to the log.
type loggedError struct {
	err error
}

func (e *loggedError) Error() string { return e.err.Error() }
func (e *loggedError) Unwrap() error { return e.err }

func alreadyLogged(err error) bool {
	var le *loggedError
	return errors.As(err, &le)
}

// logOnce logs err at error level unless it was logged before, and returns it
// marked as logged.
func (s *Session) logOnce(logger *slog.Logger, msg string, err error, args ...any) error {
	if err == nil || alreadyLogged(err) {
		return err
	}
	logger.Error(msg, append(args, logging.Err(err))...)
	return &loggedError{err: err}
}

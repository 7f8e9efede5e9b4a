// Package e2e provides testing infrastructure for end-to-end CLI tests.
// It runs hubsync commands against a content hub served over HTTP, with an
// isolated home directory and workspace per test.
package e2e

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauern/hubsync/internal/cli"
)

// Result contains the outcome of running a CLI command.
type Result struct {
	// Stdout contains the captured standard output.
	Stdout string
	// Err is the error returned by the CLI command, if any.
	Err error
	// ExitCode is the inferred exit code (0 for success, 1 for error).
	ExitCode int
}

// Success returns true if the command completed without error.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Harness runs CLI commands in an isolated environment.
type Harness struct {
	t         *testing.T
	homeDir   string
	workspace string
	hub       *Hub
}

// NewHarness starts a hub and points HUBSYNC_HOME, the server URL and the
// workspace root at it and at fresh temp directories.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	h := &Harness{
		t:         t,
		homeDir:   t.TempDir(),
		workspace: t.TempDir(),
		hub:       NewHub(t),
	}

	h.SetEnv("HUBSYNC_HOME", h.homeDir)
	h.SetEnv("HUBSYNC_SERVER_URL", h.hub.URL())
	h.SetEnv("HUBSYNC_WORKSPACE_ROOT", h.workspace)

	return h
}

// SetEnv sets an environment variable for the rest of the test.
func (h *Harness) SetEnv(key, value string) {
	h.t.Helper()
	h.t.Setenv(key, value)
}

// HomeDir returns the isolated HUBSYNC_HOME directory.
func (h *Harness) HomeDir() string {
	return h.homeDir
}

// Hub returns the content hub the CLI talks to.
func (h *Harness) Hub() *Hub {
	return h.hub
}

// Workspace returns a fixture rooted at the workspace directory.
func (h *Harness) Workspace() *Fixture {
	return NewFixture(h.t, h.workspace)
}

// WorkspacePath joins rel onto the workspace directory.
func (h *Harness) WorkspacePath(rel string) string {
	return filepath.Join(h.workspace, rel)
}

// Run executes a CLI command with colors disabled and captures stdout.
func (h *Harness) Run(args ...string) *Result {
	h.t.Helper()

	args = append([]string{"hubsync", "--no-color"}, args...)

	oldStdout := os.Stdout
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		h.t.Fatalf("failed to create stdout pipe: %v", err)
	}
	os.Stdout = stdoutW

	// Drain concurrently so output larger than the pipe buffer cannot block the command.
	var stdoutBuf bytes.Buffer
	var copyErr error
	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		_, copyErr = io.Copy(&stdoutBuf, stdoutR)
	}()

	cmdErr := cli.Run(context.Background(), args)

	if err := stdoutW.Close(); err != nil {
		h.t.Fatalf("failed to close stdout pipe writer: %v", err)
	}
	os.Stdout = oldStdout

	<-copyDone
	if copyErr != nil {
		h.t.Fatalf("failed to read captured stdout: %v", copyErr)
	}

	exitCode := 0
	if cmdErr != nil {
		exitCode = 1
	}

	return &Result{
		Stdout:   stdoutBuf.String(),
		Err:      cmdErr,
		ExitCode: exitCode,
	}
}

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/klauern/hubsync/internal/cli"
)

// captureStdout runs fn with os.Stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	runErr := fn()

	if closeErr := w.Close(); closeErr != nil {
		t.Fatalf("failed to close pipe writer: %v", closeErr)
	}
	os.Stdout = old

	var buf bytes.Buffer
	if _, copyErr := io.Copy(&buf, r); copyErr != nil {
		t.Fatalf("failed to read captured output: %v", copyErr)
	}
	return buf.String(), runErr
}

func TestCLIInitialization(t *testing.T) {
	output, err := captureStdout(t, func() error {
		return cli.Run(context.Background(), []string{"hubsync", "--help"})
	})
	if err != nil {
		t.Fatalf("CLI initialization failed: %v", err)
	}

	if !strings.Contains(output, "hubsync") {
		t.Errorf("expected help output to contain 'hubsync', got: %q", output)
	}
}

func TestVersionFlag(t *testing.T) {
	output, err := captureStdout(t, func() error {
		return cli.Run(context.Background(), []string{"hubsync", "--version"})
	})
	if err != nil {
		t.Fatalf("--version flag failed: %v", err)
	}

	if !strings.Contains(output, "hubsync") {
		t.Errorf("expected version output to contain 'hubsync', got: %q", output)
	}
}

func TestGlobalFlagsRecognized(t *testing.T) {
	tests := map[string]struct {
		args    []string
		wantErr bool
	}{
		"verbose flag":  {args: []string{"hubsync", "--verbose", "version"}},
		"debug flag":    {args: []string{"hubsync", "--debug", "version"}},
		"no-color flag": {args: []string{"hubsync", "--no-color", "version"}},
		"server flag":   {args: []string{"hubsync", "--server", "https://hub.example.com", "--tenant", "acme", "version"}},
		"bad server":    {args: []string{"hubsync", "--server", "not a url", "version"}, wantErr: true},
		"bad format":    {args: []string{"hubsync", "--format", "xml", "version"}, wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := captureStdout(t, func() error {
				return cli.Run(context.Background(), tt.args)
			})
			if (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAllCommandsRegistered(t *testing.T) {
	output, err := captureStdout(t, func() error {
		return cli.Run(context.Background(), []string{"hubsync", "--help"})
	})
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	for _, cmd := range []string{"version", "config", "list", "pull", "push", "delete", "compare"} {
		if !strings.Contains(output, cmd) {
			t.Errorf("expected command %q to be registered, help output: %q", cmd, output)
		}
	}
}

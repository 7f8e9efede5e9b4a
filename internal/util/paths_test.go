package util

import (
	"path/filepath"
	"testing"
)

func TestHomeDir(t *testing.T) {
	home := HomeDir()
	if home == "" {
		t.Fatal("HomeDir() returned empty string")
	}
	if !filepath.IsAbs(home) {
		t.Errorf("HomeDir() returned relative path: %s", home)
	}
}

func TestHubsyncHome(t *testing.T) {
	t.Setenv(HomeEnv, "")
	AssertEqual(t, HubsyncHome(), filepath.Join(HomeDir(), ".hubsync"))

	dir := CreateTempDir(t)
	t.Setenv(HomeEnv, dir)
	AssertEqual(t, HubsyncHome(), dir)
}

func TestExpandPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"~", HomeDir()},
		{"~/work/site", filepath.Join(HomeDir(), "work", "site")},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package util

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the hubsync home directory.
const HomeEnv = "HUBSYNC_HOME"

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// HubsyncHome returns the directory holding hubsync's own configuration.
// HUBSYNC_HOME takes precedence over ~/.hubsync.
func HubsyncHome() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return ExpandPath(dir)
	}
	return filepath.Join(HomeDir(), ".hubsync")
}

// BackupsPath returns the default backup directory.
func BackupsPath() string {
	return filepath.Join(HubsyncHome(), "backups")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) string {
	if p == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(HomeDir(), p[2:])
	}
	return p
}

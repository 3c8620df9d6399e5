package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns where cmd/basekv puts a stream's Pebble store and
// embedded log when the caller doesn't pass --data-dir. It picks the
// platform's conventional application-data location, falling back to a
// dotdir under the user's home when none is detectable, the same fallback
// chain a CLI packaged for Linux, macOS, and Windows needs.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "basekv")
	}

	if isDir("/var/lib") {
		return "/var/lib/basekv"
	}

	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "Basekv")
	}

	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "Basekv")
	}

	return filepath.Join(homeDir, ".basekv")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

//go:build !windows

package qstore

import (
	"os"
	"path/filepath"
)

// DefaultDir returns the per-user data directory for appID.
func DefaultDir(appID string) string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appID)
	}
	return filepath.Join("$HOME", ".local", "share", appID)
}

// DefaultRegistryPath is empty off Windows; there is no registry store.
func DefaultRegistryPath(appID string) string {
	return ""
}

// NewRegistryDataStore is not available off Windows.
func NewRegistryDataStore(path string) (DataStore, error) {
	return nil, ErrUnsupported
}

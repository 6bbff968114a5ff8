//go:build windows

package qstore

import (
	"os"
	"path/filepath"
)

// DefaultDir returns the per-user data directory for appID.
func DefaultDir(appID string) string {
	appData := os.Getenv("LOCALAPPDATA")
	if appData == "" {
		appData = os.Getenv("APPDATA")
	}
	return filepath.Join(appData, appID)
}

// DefaultRegistryPath returns the HKEY_CURRENT_USER key that holds appID preferences.
func DefaultRegistryPath(appID string) string {
	return `CU\SOFTWARE\` + appID
}

package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DBFileName is the trace database file inside the store directory.
const DBFileName = "traces.db"

// GlobalFipsimPath returns the path to the global .fipsim directory.
// On Unix: ~/.fipsim
// On Windows: %USERPROFILE%\.fipsim
func GlobalFipsimPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".fipsim"), nil
}

// ResolveDir returns dir, or the global .fipsim directory when dir is empty.
// A leading "~/" is expanded to the user's home directory.
func ResolveDir(dir string) (string, error) {
	if dir == "" {
		return GlobalFipsimPath()
	}
	if len(dir) >= 2 && dir[:2] == "~/" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		return filepath.Join(homeDir, dir[2:]), nil
	}
	return dir, nil
}

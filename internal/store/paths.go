package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the state directory holding the run database, the decision
// log, and the activity log.
const DirName = ".neuronsim"

// GlobalPath returns the path to the global .neuronsim directory.
// On Unix: ~/.neuronsim
// On Windows: %USERPROFILE%\.neuronsim
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

// LocalPath returns the .neuronsim directory for the given project root.
func LocalPath(projectRoot string) string {
	return filepath.Join(projectRoot, DirName)
}

// EnsureGlobalDir creates the global .neuronsim directory if it doesn't exist.
func EnsureGlobalDir() (string, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(globalPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create global %s directory: %w", DirName, err)
	}
	return globalPath, nil
}

// ResolveInDir returns path unchanged when absolute, otherwise joined to dir.
func ResolveInDir(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

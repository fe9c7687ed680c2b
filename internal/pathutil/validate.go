// Package pathutil validates user-supplied file paths before they are
// read or written.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MontagueM/NeuronImperialProject/internal/store"
)

// BackupDirName is the archive directory inside a state directory.
const BackupDirName = "backups"

// RedactPath shortens a path to .../<parent>/<base> for error messages.
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// ValidatePath reports an error unless path, after cleaning and symlink
// resolution, lies inside one of allowedDirs. The file itself need not
// exist.
func ValidatePath(path string, allowedDirs []string) error {
	if path == "" {
		return fmt.Errorf("path validation failed: path is empty")
	}
	if len(allowedDirs) == 0 {
		return fmt.Errorf("path validation failed: no allowed directories configured")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path validation failed: path contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	dir, err := resolve(filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}
	resolved := filepath.Join(dir, filepath.Base(abs))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		allowedResolved, err := resolve(allowedAbs)
		if err != nil {
			continue
		}
		if within(resolved, allowedResolved) {
			return nil
		}
	}
	return fmt.Errorf("path validation failed: %q is outside allowed directories", RedactPath(abs))
}

// resolve evaluates symlinks on the deepest existing ancestor of dir and
// re-appends the missing tail.
func resolve(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}
	resolvedParent, err := resolve(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

func within(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+string(os.PathSeparator))
}

// AllowedBackupDirs returns the project's and the user's archive
// directories: <root>/.neuronsim/backups and ~/.neuronsim/backups.
func AllowedBackupDirs(projectRoot string) ([]string, error) {
	global, err := store.GlobalPath()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(store.LocalPath(projectRoot), BackupDirName),
		filepath.Join(global, BackupDirName),
	}, nil
}

// Package backup archives recorded simulation runs to compressed files
// and restores them into a run store.
package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/MontagueM/NeuronImperialProject/internal/pathutil"
	"github.com/MontagueM/NeuronImperialProject/internal/store"
)

// filePrefix and fileExt name archive files; the timestamp between them
// sorts lexically.
const (
	filePrefix = "neuronsim-runs-"
	fileExt    = ".json.gz"
)

// Archive is the payload of an archive file: every run with its histogram.
type Archive struct {
	CreatedAt time.Time         `json:"created_at"`
	Runs      []store.RunRecord `json:"runs"`
}

// DefaultDir returns the project's archive directory.
func DefaultDir(projectRoot string) string {
	return filepath.Join(store.LocalPath(projectRoot), pathutil.BackupDirName)
}

// GeneratePath returns a timestamped archive path in dir.
func GeneratePath(dir string, now time.Time) string {
	return filepath.Join(dir, filePrefix+now.UTC().Format("20060102-150405.000")+fileExt)
}

// Backup writes every run in s to outputPath. When allowedDirs is
// non-empty the path must lie inside one of them.
func Backup(ctx context.Context, s store.RunStore, outputPath string, allowedDirs []string) (*Archive, error) {
	if len(allowedDirs) > 0 {
		if err := pathutil.ValidatePath(outputPath, allowedDirs); err != nil {
			return nil, fmt.Errorf("backup path rejected: %w", err)
		}
	}

	summaries, err := s.ListRuns(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	a := &Archive{CreatedAt: time.Now(), Runs: make([]store.RunRecord, 0, len(summaries))}
	for _, sum := range summaries {
		run, err := s.GetRun(ctx, sum.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read run %s: %w", sum.ID, err)
		}
		a.Runs = append(a.Runs, *run)
	}

	if err := Write(outputPath, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RestoreMode controls how restore handles existing runs.
type RestoreMode string

const (
	// RestoreMerge skips runs whose id is already stored (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace deletes every stored run before restoring.
	RestoreReplace RestoreMode = "replace"
)

// RestoreResult counts what a restore did.
type RestoreResult struct {
	Restored int `json:"restored"`
	Skipped  int `json:"skipped"`
	Deleted  int `json:"deleted"`
}

// Restore loads the archive at inputPath into s.
func Restore(ctx context.Context, s store.RunStore, inputPath string, mode RestoreMode, allowedDirs []string) (*RestoreResult, error) {
	if len(allowedDirs) > 0 {
		if err := pathutil.ValidatePath(inputPath, allowedDirs); err != nil {
			return nil, fmt.Errorf("restore path rejected: %w", err)
		}
	}

	a, err := Read(inputPath)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	if mode == RestoreReplace {
		existing, err := s.ListRuns(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		for _, r := range existing {
			if err := s.DeleteRun(ctx, r.ID); err != nil {
				return nil, fmt.Errorf("failed to delete run %s: %w", r.ID, err)
			}
			result.Deleted++
		}
	}

	for _, run := range a.Runs {
		if mode != RestoreReplace {
			if _, err := s.GetRun(ctx, run.ID); err == nil {
				result.Skipped++
				continue
			}
		}
		if err := s.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to restore run %s: %w", run.ID, err)
		}
		result.Restored++
	}
	return result, nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MontagueM/NeuronImperialProject/internal/activity"
	"github.com/MontagueM/NeuronImperialProject/internal/store"
)

// seedRuns records n runs, oldest first, and returns their ids.
func seedRuns(t *testing.T, root string, n int) []string {
	t.Helper()
	s, err := store.NewSQLiteRunStore(root)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore failed: %v", err)
	}
	defer s.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < n; i++ {
		id := "run-" + string(rune('a'+i))
		err := s.SaveRun(context.Background(), store.RunRecord{
			ID:             id,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			HorizonMS:      200,
			RefractoryMS:   2,
			ExcitatoryProb: 0.8,
			InhibitoryProb: 0.8,
			Mode:           "gated",
			Population:     100,
			EdgeCount:      1000,
			RNGSeed:        42,
			Seeds:          []int{0},
			EventCount:     5,
			Histogram:      activity.Histogram{Times: []float64{0, 1.9}, Counts: []int{1, 4}},
		})
		if err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestHistoryList(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out, err := execute(t, newHistoryCmd(), "history", "list", "--root", tmpDir)
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	if !strings.Contains(out, "No runs recorded yet") {
		t.Errorf("empty list output = %q", out)
	}

	ids := seedRuns(t, tmpDir, 3)

	out, err = execute(t, newHistoryCmd(), "history", "list", "--root", tmpDir, "--limit", "2")
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	if !strings.Contains(out, ids[2]) || !strings.Contains(out, ids[1]) || strings.Contains(out, ids[0]) {
		t.Errorf("expected the two newest runs, got:\n%s", out)
	}

	out, err = execute(t, newHistoryCmd(), "history", "list", "--root", tmpDir, "--json")
	if err != nil {
		t.Fatalf("history list --json failed: %v", err)
	}
	var result struct {
		Runs  []store.RunRecord `json:"runs"`
		Count int               `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result.Count != 3 || result.Runs[0].ID != ids[2] {
		t.Errorf("unexpected list %+v", result)
	}
}

func TestHistoryShow(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	ids := seedRuns(t, tmpDir, 1)

	out, err := execute(t, newHistoryCmd(), "history", "show", ids[0], "--root", tmpDir)
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	for _, want := range []string{"Run " + ids[0], "100 neurons", "TIME", "1.9"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, newHistoryCmd(), "history", "show", ids[0], "--root", tmpDir, "--json")
	if err != nil {
		t.Fatalf("history show --json failed: %v", err)
	}
	var run store.RunRecord
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if run.Histogram.Total() != 5 {
		t.Errorf("histogram total = %d, want 5", run.Histogram.Total())
	}

	_, err = execute(t, newHistoryCmd(), "history", "show", "missing", "--root", tmpDir)
	if !errors.Is(err, store.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestHistoryDelete(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	ids := seedRuns(t, tmpDir, 2)

	out, err := execute(t, newHistoryCmd(), "history", "delete", ids[0], "--root", tmpDir)
	if err != nil {
		t.Fatalf("history delete failed: %v", err)
	}
	if !strings.Contains(out, "Deleted run "+ids[0]) {
		t.Errorf("output = %q", out)
	}

	_, err = execute(t, newHistoryCmd(), "history", "delete", ids[0], "--root", tmpDir)
	if !errors.Is(err, store.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound on second delete, got %v", err)
	}

	if _, err := execute(t, newHistoryCmd(), "history", "show", "--root", tmpDir); err == nil {
		t.Error("expected error without an id")
	}
}

func TestHistoryBackupRestore(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	ids := seedRuns(t, tmpDir, 2)

	out, err := execute(t, newHistoryCmd(), "history", "backup", "--root", tmpDir, "--json")
	if err != nil {
		t.Fatalf("history backup failed: %v", err)
	}
	var backupOut struct {
		Path string `json:"path"`
		Runs int    `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &backupOut); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if backupOut.Runs != 2 {
		t.Errorf("archived %d runs, want 2", backupOut.Runs)
	}

	if _, err := execute(t, newHistoryCmd(), "history", "delete", ids[0], "--root", tmpDir); err != nil {
		t.Fatalf("history delete failed: %v", err)
	}

	out, err = execute(t, newHistoryCmd(), "history", "restore", backupOut.Path, "--root", tmpDir)
	if err != nil {
		t.Fatalf("history restore failed: %v", err)
	}
	if !strings.Contains(out, "Restored 1 runs (1 skipped, 0 deleted)") {
		t.Errorf("output = %q", out)
	}
	if _, err := execute(t, newHistoryCmd(), "history", "show", ids[0], "--root", tmpDir); err != nil {
		t.Errorf("restored run missing: %v", err)
	}
}

func TestHistoryBackup_RejectsOutsidePath(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	seedRuns(t, tmpDir, 1)

	outside := filepath.Join(t.TempDir(), "runs.json.gz")
	_, err := execute(t, newHistoryCmd(), "history", "backup", "--root", tmpDir, "-o", outside)
	if err == nil || !strings.Contains(err.Error(), "outside allowed directories") {
		t.Errorf("expected path rejection, got %v", err)
	}
}

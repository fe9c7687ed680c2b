package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MontagueM/NeuronImperialProject/internal/store"
)

type runOutput struct {
	RunID      string  `json:"run_id"`
	Population int     `json:"population"`
	RNGSeed    uint64  `json:"rng_seed"`
	Seeds      []int   `json:"seeds"`
	Horizon    float64 `json:"horizon_ms"`
	Histogram  struct {
		Times  []float64 `json:"times"`
		Counts []int     `json:"counts"`
	} `json:"histogram"`
	Events []json.RawMessage `json:"events"`
}

func runJSON(t *testing.T, args ...string) runOutput {
	t.Helper()
	out, err := execute(t, newRunCmd(), append([]string{"run", "--json"}, args...)...)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	var result runOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	return result
}

func TestRunCmd_RecordsRun(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	result := runJSON(t, "--root", tmpDir, "--config", cfgPath)
	if result.Population != 100 || result.RNGSeed != 42 || result.Horizon != 20 {
		t.Errorf("unexpected run %+v", result)
	}
	if len(result.Seeds) != 1 || result.Seeds[0] != 0 {
		t.Errorf("Seeds = %v, want [0]", result.Seeds)
	}
	if len(result.Events) != 0 {
		t.Error("events printed without --events")
	}

	s, err := store.NewSQLiteRunStore(tmpDir)
	if err != nil {
		t.Fatalf("NewSQLiteRunStore failed: %v", err)
	}
	defer s.Close()
	runs, err := s.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != result.RunID {
		t.Errorf("stored runs = %+v, want %s", runs, result.RunID)
	}

	entries, err := store.ReadActivityLog(filepath.Join(tmpDir, store.DirName, store.ActivityFile))
	if err != nil {
		t.Fatalf("activity log not written: %v", err)
	}
	if len(entries) != 1 || entries[0].RuntimeMS != 20 {
		t.Errorf("activity log = %+v", entries)
	}
}

func TestRunCmd_Deterministic(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	a := runJSON(t, "--root", tmpDir, "--config", cfgPath, "--no-save")
	b := runJSON(t, "--root", tmpDir, "--config", cfgPath, "--no-save")
	if len(a.Histogram.Times) != len(b.Histogram.Times) {
		t.Fatalf("histograms differ: %v vs %v", a.Histogram, b.Histogram)
	}
	for i := range a.Histogram.Times {
		if a.Histogram.Times[i] != b.Histogram.Times[i] || a.Histogram.Counts[i] != b.Histogram.Counts[i] {
			t.Fatalf("bin %d differs", i)
		}
	}
	if _, err := os.Stat(filepath.Join(tmpDir, store.DirName, store.DBFile)); !os.IsNotExist(err) {
		t.Error("--no-save still created the run database")
	}
}

func TestRunCmd_SeedsAndOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	result := runJSON(t, "--root", tmpDir, "--config", cfgPath, "--no-save",
		"--seeds", "3,7", "--excitatory-prob", "0", "--inhibitory-prob", "0", "--events")
	if len(result.Seeds) != 2 {
		t.Errorf("Seeds = %v, want [3 7]", result.Seeds)
	}
	if len(result.Events) != 2 {
		t.Errorf("expected only the seeds to fire, got %d events", len(result.Events))
	}
	if len(result.Histogram.Counts) != 1 || result.Histogram.Counts[0] != 2 {
		t.Errorf("Histogram = %+v, want one bin of 2", result.Histogram)
	}
}

func TestRunCmd_TextAndPlots(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)
	plotPath := filepath.Join(tmpDir, "activity.svg")
	tracesPath := filepath.Join(tmpDir, "traces.png")

	out, err := execute(t, newRunCmd(), "run", "--root", tmpDir, "--config", cfgPath, "--no-save",
		"--plot", plotPath, "--traces", tracesPath, "--traces-n", "3")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{"Run ", "100 neurons", "rng seed 42", "Activity plot written", "Voltage traces written"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, path := range []string{plotPath, tracesPath} {
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Errorf("plot %s not written: %v", path, err)
		}
	}
}

func TestRunCmd_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	tests := []struct {
		name string
		args []string
	}{
		{"probability out of range", []string{"--excitatory-prob", "1.5"}},
		{"unknown preset", []string{"--preset", "hippocampus"}},
		{"unknown mode", []string{"--mode", "sideways"}},
		{"seed out of range", []string{"--seeds", "100"}},
		{"bad plot format", []string{"--plot", filepath.Join(tmpDir, "activity.bmp")}},
		{"missing config", []string{"--config", filepath.Join(tmpDir, "missing.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", "--root", tmpDir, "--config", cfgPath, "--no-save"}, tt.args...)
			if _, err := execute(t, newRunCmd(), args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

package main

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWaveformCmd(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out, err := execute(t, newWaveformCmd(), "waveform")
	if err != nil {
		t.Fatalf("waveform failed: %v", err)
	}
	if !strings.Contains(out, "Completion time: 1.9") || !strings.Contains(out, "Fired:           true") {
		t.Errorf("output = %q", out)
	}
}

func TestWaveformCmd_JSON(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out, err := execute(t, newWaveformCmd(), "waveform", "--json", "--samples")
	if err != nil {
		t.Fatalf("waveform failed: %v", err)
	}
	var result struct {
		CompletionTime float64 `json:"completion_time"`
		Fired          bool    `json:"fired"`
		SampleCount    int     `json:"sample_count"`
		Samples        []struct {
			T float64 `json:"t"`
			V float64 `json:"v"`
		} `json:"samples"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if math.Abs(result.CompletionTime-1.9) > 1e-9 || !result.Fired {
		t.Errorf("unexpected template %+v", result)
	}
	if len(result.Samples) != result.SampleCount || result.SampleCount == 0 {
		t.Errorf("got %d samples, want %d", len(result.Samples), result.SampleCount)
	}
}

func TestWaveformCmd_Overrides(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	plotPath := filepath.Join(tmpDir, "waveform.svg")

	out, err := execute(t, newWaveformCmd(), "waveform", "--json", "--time-scale", "0.2", "--plot", plotPath)
	if err != nil {
		t.Fatalf("waveform failed: %v", err)
	}
	var result struct {
		CompletionTime float64 `json:"completion_time"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if math.Abs(result.CompletionTime-3.8) > 1e-9 {
		t.Errorf("doubling the time scale gave completion %v, want 3.8", result.CompletionTime)
	}
	if _, err := os.Stat(plotPath); err != nil {
		t.Errorf("plot not written: %v", err)
	}

	if _, err := execute(t, newWaveformCmd(), "waveform", "--time-scale", "-1"); err == nil {
		t.Error("expected error for negative time scale")
	}
}

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MontagueM/NeuronImperialProject/internal/config"
)

func TestConfigInit(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	path := filepath.Join(tmpDir, "flat.yaml")

	out, err := execute(t, newConfigCmd(), "config", "init", "--preset", "flat", "-o", path)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, "Wrote "+path) {
		t.Errorf("output = %q", out)
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Population() != 100 {
		t.Errorf("Population = %d, want 100", cfg.Population())
	}

	if _, err := execute(t, newConfigCmd(), "config", "init", "-o", path); err == nil {
		t.Error("expected error when the file exists")
	}
	if _, err := execute(t, newConfigCmd(), "config", "init", "-o", path, "--force"); err != nil {
		t.Errorf("--force failed: %v", err)
	}
	if _, err := execute(t, newConfigCmd(), "config", "init", "--preset", "hippocampus", "-o", filepath.Join(tmpDir, "x.yaml")); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestConfigInit_Global(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	if _, err := execute(t, newConfigCmd(), "config", "init"); err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	path := filepath.Join(tmpDir, "home", ".neuronsim", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("global config not written: %v", err)
	}

	// The global file is now picked up by Load.
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Population() != config.Default().Population() {
		t.Errorf("Population = %d, want default", cfg.Population())
	}
}

func TestConfigList(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	out, err := execute(t, newConfigCmd(), "config", "list", "--config", cfgPath)
	if err != nil {
		t.Fatalf("config list failed: %v", err)
	}
	if !strings.Contains(out, "horizon_ms: 20") || !strings.Contains(out, "rng_seed: 42") {
		t.Errorf("YAML output missing overrides:\n%s", out)
	}

	t.Setenv("NEURONSIM_HORIZON_MS", "55")
	out, err = execute(t, newConfigCmd(), "config", "list", "--config", cfgPath, "--json")
	if err != nil {
		t.Fatalf("config list --json failed: %v", err)
	}
	var cfg config.SimConfig
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if cfg.Propagation.HorizonMS != 55 {
		t.Errorf("HorizonMS = %v, want env override 55", cfg.Propagation.HorizonMS)
	}
}

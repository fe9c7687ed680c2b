package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MontagueM/NeuronImperialProject/internal/config"
	"github.com/MontagueM/NeuronImperialProject/internal/store"
)

// isolateHome sets HOME to a temp directory to avoid touching real ~/.neuronsim/
func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0755); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
}

// testSimConfig is a small flat network with a fixed random seed.
func testSimConfig() *config.SimConfig {
	cfg := config.FlatPreset()
	cfg.Propagation.HorizonMS = 20
	cfg.Seed.Policy = config.SeedFixed
	cfg.Seed.RNGSeed = 42
	return cfg
}

func TestNewServer(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	server, err := NewServer(&Config{
		Name:    "test-server",
		Version: "v1.0.0",
		Root:    tmpDir,
		Sim:     testSimConfig(),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	if server.server == nil {
		t.Error("Server.server is nil")
	}
	if server.store == nil {
		t.Error("Server.store is nil")
	}
	if server.root != tmpDir {
		t.Errorf("Server.root = %q, want %q", server.root, tmpDir)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, store.DirName, store.DBFile)); err != nil {
		t.Errorf("run database not created: %v", err)
	}
	if server.auditLogger.Path() != filepath.Join(tmpDir, store.DirName, AuditFile) {
		t.Errorf("audit log path = %s", server.auditLogger.Path())
	}
}

func TestNewServer_LoadsDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	server, err := NewServer(&Config{Name: "test", Version: "v0", Root: tmpDir})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	if server.sim.Population() != config.Default().Population() {
		t.Errorf("Population = %d, want default", server.sim.Population())
	}
}

func TestNewServer_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	cfg := testSimConfig()
	cfg.Propagation.Mode = "sideways"
	if _, err := NewServer(&Config{Name: "test", Version: "v0", Root: tmpDir, Sim: cfg}); err == nil {
		t.Error("expected error for invalid mode")
	}
}

func TestNewServer_HasRateLimiters(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	server, err := NewServer(&Config{Name: "t", Version: "v0", Root: tmpDir, Sim: testSimConfig()})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	for _, tool := range []string{"neuronsim_simulate", "neuronsim_waveform", "neuronsim_history"} {
		if _, ok := server.toolLimiters[tool]; !ok {
			t.Errorf("missing rate limiter for %s", tool)
		}
	}
}

func TestRun_CancelledContext(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

package main

import (
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"
)

func TestGraphDefaultFormatIsDOT(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	out, err := execute(t, newGraphCmd(), "graph", "--config", cfgPath)
	if err != nil {
		t.Fatalf("graph failed: %v", err)
	}
	if !strings.Contains(out, "digraph") || !strings.Contains(out, "cluster_flat") {
		t.Errorf("expected DOT output with a flat cluster, got: %s", out)
	}
}

func TestGraphJSON(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	for _, args := range [][]string{
		{"graph", "--config", cfgPath, "--format", "json"},
		{"graph", "--config", cfgPath, "--json"},
	} {
		out, err := execute(t, newGraphCmd(), args...)
		if err != nil {
			t.Fatalf("%v failed: %v", args, err)
		}
		var result struct {
			NodeCount int    `json:"node_count"`
			EdgeCount int    `json:"edge_count"`
			RNGSeed   uint64 `json:"rng_seed"`
		}
		if err := json.Unmarshal([]byte(out), &result); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if result.NodeCount != 100 || result.RNGSeed != 42 || result.EdgeCount == 0 {
			t.Errorf("%v: unexpected graph %+v", args, result)
		}
	}
}

func TestGraphPresetAndSeed(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	a, err := execute(t, newGraphCmd(), "graph", "--config", cfgPath, "--rng-seed", "7")
	if err != nil {
		t.Fatalf("graph failed: %v", err)
	}
	b, err := execute(t, newGraphCmd(), "graph", "--config", cfgPath, "--rng-seed", "7")
	if err != nil {
		t.Fatalf("graph failed: %v", err)
	}
	if a != b {
		t.Error("same seed produced different graphs")
	}
}

func TestGraphUnsupportedFormat(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	_, err := execute(t, newGraphCmd(), "graph", "--config", cfgPath, "--format", "html")
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}

func TestGraphServe(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	// If --serve is honored, the server blocks and writes "Graph server running at ...".
	pr, pw := io.Pipe()

	go func() {
		rootCmd := newTestRootCmd()
		rootCmd.AddCommand(newGraphCmd())
		rootCmd.SetOut(pw)
		rootCmd.SetArgs([]string{"graph", "--serve", "--no-open", "--config", cfgPath})
		rootCmd.Execute()
		pw.Close()
	}()

	type readResult struct {
		data string
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		buf := make([]byte, 4096)
		n, err := pr.Read(buf)
		ch <- readResult{string(buf[:n]), err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && r.err != io.EOF {
			t.Fatalf("read error: %v", r.err)
		}
		if strings.Contains(r.data, "digraph") {
			t.Fatalf("--serve was ignored: %s", r.data)
		}
		if !strings.Contains(r.data, "Graph server running at http://") {
			t.Fatalf("expected 'Graph server running at', got: %q", r.data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for server output")
	}

	// Close the pipe reader to unblock the server goroutine.
	pr.Close()
}

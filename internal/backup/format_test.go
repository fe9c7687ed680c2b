package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MontagueM/NeuronImperialProject/internal/store"
)

func writeArchive(t *testing.T, runs ...store.RunRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive"+fileExt)
	if err := Write(path, &Archive{CreatedAt: time.Now(), Runs: runs}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return path
}

func TestWriteRead_RoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	path := writeArchive(t, sampleRun("run-a", created), sampleRun("run-b", created))

	header, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if header.Version != FormatVersion || header.RunCount != 2 || !header.Compressed {
		t.Errorf("header = %+v", header)
	}
	if !strings.HasPrefix(header.Checksum, "sha256:") {
		t.Errorf("Checksum = %q", header.Checksum)
	}

	a, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(a.Runs) != 2 || a.Runs[1].ID != "run-b" || !a.Runs[0].CreatedAt.Equal(created) {
		t.Errorf("archive = %+v", a)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}

func TestRead_Tampered(t *testing.T) {
	path := writeArchive(t, sampleRun("run-a", time.Now()))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	if err := Verify(path); err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("Verify error = %v, want checksum mismatch", err)
	}
	if _, err := Read(path); err == nil {
		t.Error("Read accepted a tampered archive")
	}
}

func TestReadHeader_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"not json", "hello\n"},
		{"wrong version", `{"version":9,"checksum":"sha256:00"}` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_"))
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadHeader(path); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := ReadHeader(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

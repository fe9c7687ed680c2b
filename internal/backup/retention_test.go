package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func infos(ages ...time.Duration) []Info {
	now := time.Now()
	out := make([]Info, len(ages))
	for i, age := range ages {
		out[i] = Info{Path: filepath.Join("/b", string(rune('a'+i))), CreatedAt: now.Add(-age)}
	}
	return out
}

func TestCountPolicy(t *testing.T) {
	archives := infos(0, time.Hour, 2*time.Hour)
	tests := []struct {
		max  int
		want int
	}{
		{0, 0},
		{2, 2},
		{5, 3},
	}
	for _, tt := range tests {
		if got := (&CountPolicy{MaxCount: tt.max}).Apply(archives); len(got) != tt.want {
			t.Errorf("CountPolicy{%d} kept %d, want %d", tt.max, len(got), tt.want)
		}
	}
}

func TestAgePolicy(t *testing.T) {
	archives := infos(time.Minute, 2*time.Hour, 48*time.Hour)
	kept := (&AgePolicy{MaxAge: 24 * time.Hour}).Apply(archives)
	if len(kept) != 2 || kept[1].Path != archives[1].Path {
		t.Errorf("kept %+v", kept)
	}

	fixed := time.Now().Add(100 * time.Hour)
	kept = (&AgePolicy{MaxAge: 24 * time.Hour, now: func() time.Time { return fixed }}).Apply(archives)
	if len(kept) != 0 {
		t.Errorf("expected nothing kept relative to a later clock, got %d", len(kept))
	}
}

func TestListAndApplyRetention(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 4; i++ {
		path := GeneratePath(dir, base.Add(time.Duration(i)*time.Second))
		if err := Write(path, &Archive{CreatedAt: base, Runs: nil}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		paths = append(paths, path)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	archives, err := List(dir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(archives) != 4 || archives[0].Path != paths[3] {
		t.Fatalf("List = %+v", archives)
	}

	deleted, err := ApplyRetention(dir, &CountPolicy{MaxCount: 2})
	if err != nil {
		t.Fatalf("ApplyRetention failed: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("deleted %v, want the two oldest", deleted)
	}
	for _, p := range paths[:2] {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should have been deleted", filepath.Base(p))
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("non-archive file was touched")
	}

	if got, err := List(filepath.Join(dir, "missing")); err != nil || got != nil {
		t.Errorf("List(missing) = %v, %v", got, err)
	}
}

package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Info describes one archive file for retention decisions.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	RunCount  int       `json:"run_count"`
}

// RetentionPolicy decides which archives to keep. Input and output are
// sorted newest first.
type RetentionPolicy interface {
	Apply(archives []Info) (keep []Info)
}

// CountPolicy keeps the N most recent archives.
type CountPolicy struct {
	MaxCount int
}

func (p *CountPolicy) Apply(archives []Info) []Info {
	if len(archives) <= p.MaxCount {
		return archives
	}
	return archives[:p.MaxCount]
}

// AgePolicy keeps archives newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
	now    func() time.Time
}

func (p *AgePolicy) Apply(archives []Info) []Info {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []Info
	for _, a := range archives {
		if a.CreatedAt.After(cutoff) {
			keep = append(keep, a)
		}
	}
	return keep
}

// List returns the archives in dir, newest first. A missing directory
// has no archives.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var archives []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info := Info{Path: filepath.Join(dir, name), Size: fi.Size(), CreatedAt: fi.ModTime()}
		if h, err := ReadHeader(info.Path); err == nil {
			info.CreatedAt = h.CreatedAt
			info.RunCount = h.RunCount
		}
		archives = append(archives, info)
	}

	// Timestamped names sort newest first in reverse.
	sort.Slice(archives, func(i, j int) bool {
		return filepath.Base(archives[i].Path) > filepath.Base(archives[j].Path)
	})
	return archives, nil
}

// ApplyRetention deletes the archives in dir that policy does not keep
// and returns their paths.
func ApplyRetention(dir string, policy RetentionPolicy) ([]string, error) {
	archives, err := List(dir)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool)
	for _, a := range policy.Apply(archives) {
		keep[a.Path] = true
	}

	var deleted []string
	for _, a := range archives {
		if keep[a.Path] {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(a.Path), err)
		}
		deleted = append(deleted, a.Path)
	}
	return deleted, nil
}

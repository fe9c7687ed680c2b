package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MontagueM/NeuronImperialProject/internal/activity"
)

// InMemoryRunStore implements RunStore for testing and development.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]RunRecord
}

// NewInMemoryRunStore creates a new in-memory store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]RunRecord)}
}

// SaveRun stores a copy of run.
func (s *InMemoryRunStore) SaveRun(ctx context.Context, run RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if len(run.Histogram.Times) != len(run.Histogram.Counts) {
		return fmt.Errorf("histogram has %d times but %d counts", len(run.Histogram.Times), len(run.Histogram.Counts))
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun returns a copy of the stored run.
func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	out := cloneRun(run)
	return &out, nil
}

// ListRuns returns run summaries, newest first.
func (s *InMemoryRunStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run.Summary())
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// DeleteRun removes a run.
func (s *InMemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	delete(s.runs, id)
	return nil
}

// Close is a no-op.
func (s *InMemoryRunStore) Close() error { return nil }

func cloneRun(run RunRecord) RunRecord {
	run.Seeds = append([]int{}, run.Seeds...)
	run.Histogram = activity.Histogram{
		Times:  append([]float64{}, run.Histogram.Times...),
		Counts: append([]int{}, run.Histogram.Counts...),
	}
	return run
}

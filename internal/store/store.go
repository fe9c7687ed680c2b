// Package store defines the RunStore interface for persisting simulation
// runs and provides SQLite, in-memory, and plain-text implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MontagueM/NeuronImperialProject/internal/activity"
)

// ErrRunNotFound is returned when a run id is not in the store.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is the persisted summary of one simulation run.
type RunRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Config echo.
	HorizonMS      float64 `json:"horizon_ms"`
	RefractoryMS   float64 `json:"refractory_ms"`
	ExcitatoryProb float64 `json:"excitatory_prob"`
	InhibitoryProb float64 `json:"inhibitory_prob"`
	Mode           string  `json:"mode"`
	Population     int     `json:"population"`
	EdgeCount      int     `json:"edge_count"`
	RNGSeed        uint64  `json:"rng_seed"`

	// Seeds are the neurons the cascades started from.
	Seeds []int `json:"seeds"`

	EventCount int           `json:"event_count"`
	Truncated  bool          `json:"truncated"`
	Duration   time.Duration `json:"duration"`

	Histogram activity.Histogram `json:"histogram"`

	// Config is the YAML snapshot of the full configuration, if captured.
	Config string `json:"config,omitempty"`
}

// Summary returns a copy of the record without histogram bins or config
// snapshot, as returned by ListRuns.
func (r RunRecord) Summary() RunRecord {
	r.Histogram = activity.Histogram{Times: []float64{}, Counts: []int{}}
	r.Config = ""
	r.Seeds = append([]int(nil), r.Seeds...)
	return r
}

// RunStore defines the interface for storing and querying simulation runs.
type RunStore interface {
	// SaveRun inserts or replaces a run and its histogram.
	SaveRun(ctx context.Context, run RunRecord) error

	// GetRun returns the full run, or ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns run summaries, newest first. A limit of zero or
	// less returns every run.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// DeleteRun removes a run and its histogram, or returns ErrRunNotFound.
	DeleteRun(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

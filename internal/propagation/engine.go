// Package propagation drives stochastic firing cascades over a
// connectivity graph. Activation starts at a seed neuron and spreads
// depth-first along outgoing edges, gated by per-edge-type transmission
// probabilities, suppressed by a refractory window and bounded by a
// global time horizon.
//
// Each neuron replays the shared waveform template, so a firing costs a
// constant-time lookup of the template's completion time instead of an
// ODE solve.
package propagation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/MontagueM/NeuronImperialProject/internal/network"
	"github.com/MontagueM/NeuronImperialProject/internal/waveform"
)

var (
	// ErrPropagationLimit is reported when a cascade hits the event or
	// stack cap. It is advisory: the partial result is still returned.
	ErrPropagationLimit = errors.New("propagation limit exceeded")

	// ErrUnknownNeuron is returned when a cascade is seeded or stimulated
	// at an id that is not part of the graph.
	ErrUnknownNeuron = errors.New("unknown neuron")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid propagation config")
)

// Mode selects how an edge's gate interacts with the target's firing.
type Mode string

const (
	// ModeGated stimulates a target only when the edge's gate passes.
	ModeGated Mode = "gated"

	// ModeEager stimulates every target, and lets only the targets whose
	// gate passed continue the cascade.
	ModeEager Mode = "eager"
)

// Config holds tunable parameters for the propagation engine.
type Config struct {
	// Horizon is the simulated time limit (ms). No event is recorded after it.
	Horizon float64

	// Refractory is the minimum spacing (ms) between two firings of one
	// neuron. Zero disables suppression.
	Refractory float64

	// ExcitatoryProbability is the chance an excitatory edge transmits.
	ExcitatoryProbability float64

	// InhibitoryProbability is the chance an inhibitory edge transmits.
	InhibitoryProbability float64

	// MaxEvents caps the number of firing events per cascade. Zero means no cap.
	MaxEvents int

	// MaxStackDepth caps the depth of the pending-work stack. Zero means no cap.
	MaxStackDepth int

	Mode Mode
}

// DefaultConfig returns the default propagation configuration.
func DefaultConfig() Config {
	return Config{
		Horizon:               200,
		Refractory:            2,
		ExcitatoryProbability: 0.8,
		InhibitoryProbability: 0.2,
		MaxEvents:             1_000_000,
		MaxStackDepth:         1_000_000,
		Mode:                  ModeGated,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Horizon < 0 || math.IsNaN(c.Horizon) {
		return fmt.Errorf("%w: horizon must be non-negative, got %g", ErrInvalidConfig, c.Horizon)
	}
	if c.Refractory < 0 || math.IsNaN(c.Refractory) {
		return fmt.Errorf("%w: refractory must be non-negative, got %g", ErrInvalidConfig, c.Refractory)
	}
	for name, p := range map[string]float64{"excitatory": c.ExcitatoryProbability, "inhibitory": c.InhibitoryProbability} {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return fmt.Errorf("%w: %s probability must be in [0, 1], got %g", ErrInvalidConfig, name, p)
		}
	}
	if c.MaxEvents < 0 || c.MaxStackDepth < 0 {
		return fmt.Errorf("%w: caps must be non-negative", ErrInvalidConfig)
	}
	switch c.Mode {
	case ModeGated, ModeEager, "":
	default:
		return fmt.Errorf("%w: unknown mode %q (valid: gated, eager)", ErrInvalidConfig, c.Mode)
	}
	return nil
}

// Probability returns the transmission probability for an edge type.
func (c Config) Probability(t network.ConnectionType) float64 {
	if t == network.Excitatory {
		return c.ExcitatoryProbability
	}
	return c.InhibitoryProbability
}

// FiringEvent records one neuron firing at an absolute simulated time.
type FiringEvent struct {
	Neuron int     `json:"neuron"`
	Time   float64 `json:"time"`
}

// Stats counts the outcomes of a cascade.
type Stats struct {
	Stimulations         int `json:"stimulations"`
	Fired                int `json:"fired"`
	GateFailures         int `json:"gate_failures"`
	RefractoryRejections int `json:"refractory_rejections"`
	HorizonRejections    int `json:"horizon_rejections"`
	SubthresholdRejects  int `json:"subthreshold_rejections"`
	MaxDepth             int `json:"max_depth"`
}

// Result is the outcome of one seeded cascade.
type Result struct {
	Seed int

	// Events are in insertion order, not temporal order.
	Events []FiringEvent

	// Truncated is set when a safety cap stopped the cascade early.
	Truncated bool

	// Limit describes the cap that was hit; it wraps ErrPropagationLimit.
	Limit error

	Stats Stats
}

// Engine runs cascades over an immutable graph. The engine itself holds
// no per-neuron state: every Run gets a fresh Session. An Engine is not
// safe for concurrent use because it owns its random source; create one
// engine per goroutine.
type Engine struct {
	config Config
	graph  *network.Graph
	tmpl   *waveform.Template
	rng    *rand.Rand
}

// NewEngine creates a new propagation engine.
func NewEngine(g *network.Graph, tmpl *waveform.Template, config Config, rng *rand.Rand) *Engine {
	if config.Mode == "" {
		config.Mode = ModeGated
	}
	return &Engine{
		config: config,
		graph:  g,
		tmpl:   tmpl,
		rng:    rng,
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Run stimulates seed at time zero and drives the cascade to completion.
// Hitting a safety cap is not an error: the partial result is returned
// with Truncated set. Cancellation returns the partial result together
// with the context error. An invalid configuration fails with
// ErrInvalidConfig before any neuron is stimulated.
func (e *Engine) Run(ctx context.Context, seed int) (*Result, error) {
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if !e.graph.Has(seed) {
		return nil, fmt.Errorf("%w: seed %d (graph has %d neurons)", ErrUnknownNeuron, seed, e.graph.Len())
	}

	s := e.NewSession()
	var err error
	if s.Stimulate(seed, 0) {
		err = s.Forward(ctx, seed)
	}
	return s.result(seed), err
}

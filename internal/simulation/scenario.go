package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/MontagueM/NeuronImperialProject/internal/activity"
	"github.com/MontagueM/NeuronImperialProject/internal/network"
	"github.com/MontagueM/NeuronImperialProject/internal/propagation"
	"github.com/MontagueM/NeuronImperialProject/internal/waveform"
)

// defaultTemplate is computed once per process and shared by every scenario.
var defaultTemplate = sync.OnceValues(func() (*waveform.Template, error) {
	return waveform.Compute(waveform.DefaultParams())
})

// Scenario defines a single cascade experiment over a hand-built graph.
type Scenario struct {
	Name string

	// Neurons is the population size. Every neuron belongs to Layer.
	Neurons int
	Layer   string

	Edges  []EdgeSpec
	Config propagation.Config

	// Seed is the neuron stimulated at time zero.
	Seed int

	// RNGSeed fixes the random stream of the engine.
	RNGSeed uint64

	// Template, when nil, is the default Hodgkin-Huxley template.
	Template *waveform.Template
}

// EdgeSpec defines a directed connection in the scenario graph.
type EdgeSpec struct {
	Source int
	Target int
	Type   network.ConnectionType
}

// ScenarioResult captures the graph and cascade outcome of a scenario.
type ScenarioResult struct {
	Scenario  Scenario
	Graph     *network.Graph
	Template  *waveform.Template
	Result    *propagation.Result
	Histogram activity.Histogram
}

// Graph builds the scenario's network.
func (s Scenario) Graph() (*network.Graph, error) {
	layer := s.Layer
	if layer == "" {
		layer = "L"
	}
	b := network.NewBuilder()
	for i := 0; i < s.Neurons; i++ {
		b.AddNeuron(layer)
	}
	for _, e := range s.Edges {
		if err := b.Connect(e.Source, e.Target, e.Type); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
	}
	return b.Build()
}

// Run drives the scenario's cascade.
func (s Scenario) Run(ctx context.Context) (*ScenarioResult, error) {
	tmpl := s.Template
	if tmpl == nil {
		var err error
		if tmpl, err = defaultTemplate(); err != nil {
			return nil, fmt.Errorf("computing default template: %w", err)
		}
	}
	g, err := s.Graph()
	if err != nil {
		return nil, err
	}

	engine := propagation.NewEngine(g, tmpl, s.Config, rand.New(rand.NewPCG(s.RNGSeed, 1)))
	res, err := engine.Run(ctx, s.Seed)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return &ScenarioResult{
		Scenario:  s,
		Graph:     g,
		Template:  tmpl,
		Result:    res,
		Histogram: activity.Aggregate(res.Events),
	}, nil
}

// RunScenario runs s and fails the test on error.
func RunScenario(t *testing.T, s Scenario) *ScenarioResult {
	t.Helper()
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("RunScenario(%s): %v", s.Name, err)
	}
	return result
}

// certain transmits every edge.
func certain() propagation.Config {
	cfg := propagation.DefaultConfig()
	cfg.ExcitatoryProbability = 1
	cfg.InhibitoryProbability = 1
	return cfg
}

// Chain returns an excitatory chain 0 -> 1 -> ... -> n-1 with certain
// transmission, seeded at 0.
func Chain(n int) Scenario {
	s := Scenario{Name: fmt.Sprintf("chain-%d", n), Neurons: n, Config: certain()}
	for i := 0; i+1 < n; i++ {
		s.Edges = append(s.Edges, EdgeSpec{Source: i, Target: i + 1, Type: network.Excitatory})
	}
	return s
}

// Cycle returns Chain(n) with the last neuron wired back to the first.
func Cycle(n int) Scenario {
	s := Chain(n)
	s.Name = fmt.Sprintf("cycle-%d", n)
	if n > 1 {
		s.Edges = append(s.Edges, EdgeSpec{Source: n - 1, Target: 0, Type: network.Excitatory})
	}
	return s
}

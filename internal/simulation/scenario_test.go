package simulation

import (
	"context"
	"math"
	"testing"

	"github.com/MontagueM/NeuronImperialProject/internal/network"
	"github.com/MontagueM/NeuronImperialProject/internal/waveform"
)

func TestChainFiresAtMultiplesOfCompletion(t *testing.T) {
	s := Chain(4)
	s.Config.Horizon = 50
	result := RunScenario(t, s)

	AssertFiringCount(t, result, 4)
	AssertEventsWithinHorizon(t, result)
	AssertRefractoryRespected(t, result)
	AssertHistogramValid(t, result)
	AssertNoSelfEdges(t, result)

	step := result.Template.CompletionTime
	for i, ev := range result.Result.Events {
		if ev.Neuron != i {
			t.Errorf("event %d fired neuron %d", i, ev.Neuron)
		}
		if want := step * float64(i+1); math.Abs(ev.Time-want) > 1e-9 {
			t.Errorf("neuron %d fired at %v, want %v", i, ev.Time, want)
		}
	}
}

func TestCycleRunsUntilHorizon(t *testing.T) {
	s := Cycle(3)
	s.Config.Horizon = 20
	result := RunScenario(t, s)

	step := result.Template.CompletionTime
	want := int(math.Floor(20/step + 1e-9))
	AssertFiringCount(t, result, want)
	AssertEventsWithinHorizon(t, result)
	AssertRefractoryRespected(t, result)
	AssertHistogramValid(t, result)
}

func TestShortCycleIsRefractoryBlocked(t *testing.T) {
	s := Cycle(2)
	s.Config.Horizon = 100
	s.Config.Refractory = 2.5
	s.Template = &waveform.Template{
		Samples:        []waveform.Sample{{T: 0, V: -62}, {T: 1, V: 40}, {T: 3, V: -62}},
		CompletionTime: 1,
		Fired:          true,
	}
	result := RunScenario(t, s)

	// Neuron 0 re-fires two steps after its first spike, inside the window.
	AssertFiringCount(t, result, 2)
	AssertRefractoryRespected(t, result)
	if result.Result.Stats.RefractoryRejections != 1 {
		t.Errorf("RefractoryRejections = %d, want 1", result.Result.Stats.RefractoryRejections)
	}
}

func TestFanOutHistogram(t *testing.T) {
	s := Scenario{Name: "fan-out", Neurons: 5, Config: certain()}
	for i := 1; i < 5; i++ {
		typ := network.Excitatory
		if i%2 == 0 {
			typ = network.Inhibitory
		}
		s.Edges = append(s.Edges, EdgeSpec{Source: 0, Target: i, Type: typ})
	}
	result := RunScenario(t, s)

	AssertHistogramValid(t, result)
	if result.Histogram.Len() != 2 {
		t.Fatalf("Histogram = %+v, want two bins", result.Histogram)
	}
	if result.Histogram.Counts[0] != 1 || result.Histogram.Counts[1] != 4 {
		t.Errorf("Counts = %v, want [1 4]", result.Histogram.Counts)
	}
}

func TestScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		s    Scenario
	}{
		{"empty graph", Scenario{Name: "empty"}},
		{"self edge", Scenario{Name: "self", Neurons: 2, Edges: []EdgeSpec{{Source: 1, Target: 1}}}},
		{"dangling edge", Scenario{Name: "dangling", Neurons: 2, Edges: []EdgeSpec{{Source: 0, Target: 5}}}},
		{"unknown seed", Scenario{Name: "seed", Neurons: 2, Seed: 9, Config: certain()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.s.Run(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

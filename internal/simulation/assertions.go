package simulation

import (
	"math"
	"sort"
	"testing"
)

// AssertEventsWithinHorizon asserts that no event was recorded after the
// horizon and that no event precedes the seed's first spike.
func AssertEventsWithinHorizon(t *testing.T, result *ScenarioResult) {
	t.Helper()
	horizon := result.Scenario.Config.Horizon
	first := result.Template.CompletionTime
	for i, ev := range result.Result.Events {
		if ev.Time > horizon {
			t.Errorf("AssertEventsWithinHorizon: event %d (neuron %d) at %.4f past horizon %.4f", i, ev.Neuron, ev.Time, horizon)
		}
		if ev.Time < first-1e-9 {
			t.Errorf("AssertEventsWithinHorizon: event %d (neuron %d) at %.4f before first spike %.4f", i, ev.Neuron, ev.Time, first)
		}
	}
}

// AssertRefractoryRespected asserts that any two firings of one neuron are
// at least the refractory window apart.
func AssertRefractoryRespected(t *testing.T, result *ScenarioResult) {
	t.Helper()
	refractory := result.Scenario.Config.Refractory
	byNeuron := map[int][]float64{}
	for _, ev := range result.Result.Events {
		byNeuron[ev.Neuron] = append(byNeuron[ev.Neuron], ev.Time)
	}
	for id, times := range byNeuron {
		sort.Float64s(times)
		for i := 1; i < len(times); i++ {
			if gap := times[i] - times[i-1]; gap < refractory-1e-9 {
				t.Errorf("AssertRefractoryRespected: neuron %d fired at %.4f and %.4f (gap %.4f < %.4f)", id, times[i-1], times[i], gap, refractory)
			}
		}
	}
}

// AssertHistogramValid asserts that the histogram has strictly increasing
// times, positive counts, and accounts for every event.
func AssertHistogramValid(t *testing.T, result *ScenarioResult) {
	t.Helper()
	h := result.Histogram
	if len(h.Times) != len(h.Counts) {
		t.Fatalf("AssertHistogramValid: %d times but %d counts", len(h.Times), len(h.Counts))
	}
	for i := range h.Times {
		if h.Counts[i] <= 0 {
			t.Errorf("AssertHistogramValid: bin %d at %.4f has count %d", i, h.Times[i], h.Counts[i])
		}
		if i > 0 && !(h.Times[i] > h.Times[i-1]) {
			t.Errorf("AssertHistogramValid: bin %d time %.4f not after %.4f", i, h.Times[i], h.Times[i-1])
		}
		if math.IsNaN(h.Times[i]) {
			t.Errorf("AssertHistogramValid: bin %d time is NaN", i)
		}
	}
	if got, want := h.Total(), len(result.Result.Events); got != want {
		t.Errorf("AssertHistogramValid: histogram total %d, want %d events", got, want)
	}
}

// AssertNoSelfEdges asserts that no neuron is connected to itself.
func AssertNoSelfEdges(t *testing.T, result *ScenarioResult) {
	t.Helper()
	g := result.Graph
	for id := 0; id < g.Len(); id++ {
		for _, e := range g.Edges(id) {
			if e.Target == id {
				t.Errorf("AssertNoSelfEdges: neuron %d connects to itself", id)
			}
		}
	}
}

// AssertFiringCount asserts the number of recorded events.
func AssertFiringCount(t *testing.T, result *ScenarioResult, want int) {
	t.Helper()
	if got := len(result.Result.Events); got != want {
		t.Errorf("AssertFiringCount: %d events, want %d (events %v)", got, want, result.Result.Events)
	}
}

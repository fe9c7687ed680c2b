// Package simulation runs firing cascades end to end and provides a
// scenario harness for checking their emergent behavior.
//
// Runner is the production path: it computes the shared waveform
// template, generates the layered network, picks a seed by policy, drives
// one or more cascades in parallel and hands the merged activity
// histogram to every registered Sink.
//
// Scenario is the test path. A scenario names a small hand-built graph
// (or one of the Chain and Cycle helpers), a propagation configuration
// and a random seed, and RunScenario drives the real propagation engine
// over it. The Assert helpers check properties that must hold for every
// cascade.
//
// Usage:
//
//	func TestChainFiresInOrder(t *testing.T) {
//	    s := simulation.Chain(4)
//	    s.Config.Horizon = 10
//	    result := simulation.RunScenario(t, s)
//	    simulation.AssertEventsWithinHorizon(t, result)
//	    simulation.AssertRefractoryRespected(t, result)
//	}
package simulation

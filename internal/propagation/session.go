package propagation

import (
	"context"
	"fmt"
	"slices"
)

// neuronState is the mutable per-neuron record of one cascade. fires is
// kept sorted; arrivals reach a neuron out of time order because the
// cascade is depth-first.
type neuronState struct {
	fires     []float64
	localTime float64
}

// refractory reports whether at lies within window of a recorded firing.
func (st *neuronState) refractory(at, window float64) bool {
	if window <= 0 {
		return false
	}
	i, _ := slices.BinarySearch(st.fires, at)
	if i < len(st.fires) && st.fires[i]-at < window {
		return true
	}
	return i > 0 && at-st.fires[i-1] < window
}

func (st *neuronState) record(at float64) {
	i, _ := slices.BinarySearch(st.fires, at)
	st.fires = slices.Insert(st.fires, i, at)
	st.localTime = at
}

// frame is a pending forward step: neuron id, the local time its
// stimulus is sent at, and the next outgoing edge to try.
type frame struct {
	id   int
	time float64
	next int
}

// Session holds the per-neuron state of a single cascade. States live in
// an arena indexed by neuron id and are never shared between sessions.
type Session struct {
	engine *Engine
	state  []neuronState
	events []FiringEvent
	stats  Stats
	limit  error
}

// NewSession returns a session with every neuron idle.
func (e *Engine) NewSession() *Session {
	return &Session{
		engine: e,
		state:  make([]neuronState, e.graph.Len()),
	}
}

// Events returns the firing events recorded so far, in insertion order.
func (s *Session) Events() []FiringEvent { return s.events }

// Stimulate delivers a stimulus arriving at time arrival. The neuron fires
// at arrival plus the template's completion time unless that is past the
// horizon, the template never fires, or the neuron has a firing, earlier
// or later, within the refractory window of that time. It reports whether an event was recorded.
func (s *Session) Stimulate(id int, arrival float64) bool {
	if s.limit != nil || id < 0 || id >= len(s.state) {
		return false
	}
	cfg := s.engine.config
	s.stats.Stimulations++

	if !s.engine.tmpl.Fired {
		s.stats.SubthresholdRejects++
		return false
	}

	at := arrival + s.engine.tmpl.CompletionTime
	if at > cfg.Horizon {
		s.stats.HorizonRejections++
		return false
	}

	st := &s.state[id]
	if st.refractory(at, cfg.Refractory) {
		s.stats.RefractoryRejections++
		return false
	}

	if cfg.MaxEvents > 0 && len(s.events) >= cfg.MaxEvents {
		s.limit = fmt.Errorf("%w: more than %d events", ErrPropagationLimit, cfg.MaxEvents)
		return false
	}

	st.record(at)
	s.events = append(s.events, FiringEvent{Neuron: id, Time: at})
	s.stats.Fired++
	return true
}

// Forward sends id's activity to its connections and follows the cascade
// depth-first until it dies out. An explicit stack replaces recursion, so
// depth is bounded by MaxStackDepth rather than the goroutine stack.
//
// The graph may be cyclic. With a positive refractory window each neuron
// fires at most Horizon/Refractory+1 times, which bounds the cascade.
// A zero window leaves only the horizon and the gates, so certain
// transmission on dense cycles can run until the caps are hit.
func (s *Session) Forward(ctx context.Context, id int) error {
	if id < 0 || id >= len(s.state) {
		return fmt.Errorf("%w: %d", ErrUnknownNeuron, id)
	}
	cfg := s.engine.config
	g := s.engine.graph
	rng := s.engine.rng

	stack := []frame{{id: id, time: s.state[id].localTime}}
	s.trackDepth(1)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.limit != nil {
			return nil
		}

		top := &stack[len(stack)-1]
		edges := g.Edges(top.id)
		if top.time > cfg.Horizon || top.next >= len(edges) {
			stack = stack[:len(stack)-1]
			continue
		}
		edge := edges[top.next]
		top.next++
		sendAt := top.time

		pass := rng.Float64() < cfg.Probability(edge.Type)

		var fired bool
		switch cfg.Mode {
		case ModeEager:
			fired = s.Stimulate(edge.Target, sendAt)
			if !pass {
				s.stats.GateFailures++
				continue
			}
		default:
			if !pass {
				s.stats.GateFailures++
				continue
			}
			fired = s.Stimulate(edge.Target, sendAt)
		}
		if !fired {
			continue
		}

		if cfg.MaxStackDepth > 0 && len(stack) >= cfg.MaxStackDepth {
			s.limit = fmt.Errorf("%w: stack deeper than %d", ErrPropagationLimit, cfg.MaxStackDepth)
			return nil
		}
		stack = append(stack, frame{id: edge.Target, time: s.state[edge.Target].localTime})
		s.trackDepth(len(stack))
	}
	return nil
}

func (s *Session) trackDepth(depth int) {
	if depth > s.stats.MaxDepth {
		s.stats.MaxDepth = depth
	}
}

// result snapshots the session into a Result.
func (s *Session) result(seed int) *Result {
	events := s.events
	if events == nil {
		events = []FiringEvent{}
	}
	return &Result{
		Seed:      seed,
		Events:    events,
		Truncated: s.limit != nil,
		Limit:     s.limit,
		Stats:     s.stats,
	}
}

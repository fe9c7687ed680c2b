// Package network builds the layered, typed connectivity graph the
// propagation engine runs over.
//
// Neurons live in an arena indexed by dense integer ids. Outgoing edges
// are fixed once wiring completes; the resulting Graph is read-only and
// may be shared across goroutines.
package network

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration marks a fatal problem with the population or wiring
// parameters: unknown layers, empty populations, invalid densities, or
// connectivity that references neurons that do not exist.
var ErrConfiguration = errors.New("configuration error")

// ConnectionType is the kind of a directed connection.
type ConnectionType int

const (
	Excitatory ConnectionType = iota
	Inhibitory
)

// String implements fmt.Stringer.
func (c ConnectionType) String() string {
	switch c {
	case Excitatory:
		return "excitatory"
	case Inhibitory:
		return "inhibitory"
	default:
		return fmt.Sprintf("ConnectionType(%d)", int(c))
	}
}

// ParseConnectionType maps "excitatory"/"inhibitory" (case-insensitive)
// to a ConnectionType.
func ParseConnectionType(s string) (ConnectionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "excitatory", "e":
		return Excitatory, nil
	case "inhibitory", "i":
		return Inhibitory, nil
	default:
		return 0, fmt.Errorf("unknown connection type %q", s)
	}
}

// Edge is an outgoing connection to Target.
type Edge struct {
	Target int
	Type   ConnectionType
}

// Neuron is one node of the graph. Edges holds its outgoing connections,
// at most one per target.
type Neuron struct {
	ID    int
	Layer string
	Edges []Edge
}

// Layer is a named population partition.
type Layer struct {
	Name string

	// Size is the target population of the layer.
	Size int

	// ExcitatoryBias is the probability that any outgoing connection
	// drawn from this layer is excitatory.
	ExcitatoryBias float64
}

// LayerStats summarises a layer of a built graph.
type LayerStats struct {
	Layer           string `json:"layer"`
	Neurons         int    `json:"neurons"`
	Edges           int    `json:"edges"`
	ExcitatoryEdges int    `json:"excitatory_edges"`
}

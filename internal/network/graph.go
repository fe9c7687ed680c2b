package network

import "fmt"

// Graph is an immutable connectivity graph. Slices returned by its
// accessors are shared with the graph and must not be modified.
type Graph struct {
	neurons   []Neuron
	layers    []Layer
	members   map[string][]int
	edgeCount int
}

// Len returns the number of neurons.
func (g *Graph) Len() int { return len(g.neurons) }

// EdgeCount returns the total number of directed edges.
func (g *Graph) EdgeCount() int { return g.edgeCount }

// Has reports whether id names a neuron of the graph.
func (g *Graph) Has(id int) bool { return id >= 0 && id < len(g.neurons) }

// Neuron returns the neuron with the given id.
func (g *Graph) Neuron(id int) (Neuron, bool) {
	if !g.Has(id) {
		return Neuron{}, false
	}
	return g.neurons[id], true
}

// Edges returns the outgoing edges of id in wiring order.
func (g *Graph) Edges(id int) []Edge {
	if !g.Has(id) {
		return nil
	}
	return g.neurons[id].Edges
}

// Layers returns the layers in declaration order, with Size set to the
// number of neurons actually created.
func (g *Graph) Layers() []Layer {
	out := make([]Layer, len(g.layers))
	copy(out, g.layers)
	return out
}

// Members returns the ids of the neurons in the named layer.
func (g *Graph) Members(layer string) []int {
	return g.members[layer]
}

// Stats returns per-layer neuron and outgoing edge counts in layer order.
func (g *Graph) Stats() []LayerStats {
	stats := make([]LayerStats, len(g.layers))
	for i, l := range g.layers {
		st := LayerStats{Layer: l.Name}
		for _, id := range g.members[l.Name] {
			st.Neurons++
			for _, e := range g.neurons[id].Edges {
				st.Edges++
				if e.Type == Excitatory {
					st.ExcitatoryEdges++
				}
			}
		}
		stats[i] = st
	}
	return stats
}

// Builder assembles a graph by hand. It is meant for small, explicit
// topologies such as chains and cycles; use Generate for random layered
// networks.
type Builder struct {
	neurons []Neuron
	layers  []Layer
	index   []map[int]int
	pending []pendingEdge
}

type pendingEdge struct {
	from, to int
	typ      ConnectionType
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddNeuron appends a neuron to the named layer and returns its id.
func (b *Builder) AddNeuron(layer string) int {
	id := len(b.neurons)
	b.neurons = append(b.neurons, Neuron{ID: id, Layer: layer})
	b.index = append(b.index, nil)

	found := false
	for i := range b.layers {
		if b.layers[i].Name == layer {
			b.layers[i].Size++
			found = true
			break
		}
	}
	if !found {
		b.layers = append(b.layers, Layer{Name: layer, Size: 1})
	}
	return id
}

// Connect adds a directed edge. Targets may be added after the edge is
// declared; unknown ids are reported by Build. A repeated connection to
// the same target replaces its type.
func (b *Builder) Connect(from, to int, typ ConnectionType) error {
	if from == to {
		return fmt.Errorf("%w: neuron %d cannot connect to itself", ErrConfiguration, from)
	}
	b.pending = append(b.pending, pendingEdge{from: from, to: to, typ: typ})
	return nil
}

// Build validates every edge and returns the immutable graph.
func (b *Builder) Build() (*Graph, error) {
	if len(b.neurons) == 0 {
		return nil, fmt.Errorf("%w: graph has no neurons", ErrConfiguration)
	}
	n := len(b.neurons)
	for _, e := range b.pending {
		if e.from < 0 || e.from >= n {
			return nil, fmt.Errorf("%w: edge source %d does not exist", ErrConfiguration, e.from)
		}
		if e.to < 0 || e.to >= n {
			return nil, fmt.Errorf("%w: edge %d->%d targets a nonexistent neuron", ErrConfiguration, e.from, e.to)
		}
		addEdge(&b.neurons[e.from], &b.index[e.from], e.to, e.typ)
	}
	b.pending = nil
	return freeze(b.neurons, b.layers), nil
}

// addEdge appends or retypes an edge, keeping at most one edge per target.
func addEdge(n *Neuron, index *map[int]int, target int, typ ConnectionType) {
	if *index == nil {
		*index = make(map[int]int)
	}
	if pos, ok := (*index)[target]; ok {
		n.Edges[pos].Type = typ
		return
	}
	(*index)[target] = len(n.Edges)
	n.Edges = append(n.Edges, Edge{Target: target, Type: typ})
}

// freeze copies neurons and layers into a new Graph.
func freeze(neurons []Neuron, layers []Layer) *Graph {
	g := &Graph{
		neurons: make([]Neuron, len(neurons)),
		layers:  make([]Layer, len(layers)),
		members: make(map[string][]int, len(layers)),
	}
	copy(g.layers, layers)
	for i, n := range neurons {
		edges := make([]Edge, len(n.Edges))
		copy(edges, n.Edges)
		g.neurons[i] = Neuron{ID: n.ID, Layer: n.Layer, Edges: edges}
		g.members[n.Layer] = append(g.members[n.Layer], n.ID)
		g.edgeCount += len(edges)
	}
	for i := range g.layers {
		g.layers[i].Size = len(g.members[g.layers[i].Name])
	}
	return g
}

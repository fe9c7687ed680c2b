package network

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// maxRedraws bounds how many times a self-connection draw is repeated
// before the draw is given up.
const maxRedraws = 32

// Spec describes a layered random network.
type Spec struct {
	// Layers is the ordered list of layers. The order is the iteration
	// contract for both population and wiring.
	Layers []Layer

	// Densities maps "src->dst" to the fraction of the destination
	// layer's population each source neuron connects to. A bare "src"
	// key means "src->src". Entries are independent and need not sum to 1.
	Densities map[string]float64

	// SizeJitter scales every layer size by a uniform factor in
	// [1-SizeJitter, 1+SizeJitter]. Zero keeps sizes exact.
	SizeJitter float64
}

// DensityTable is a parsed density table: source layer to destination
// layer to density.
type DensityTable map[string]map[string]float64

// Get returns the density from src to dst, or zero.
func (t DensityTable) Get(src, dst string) float64 {
	return t[src][dst]
}

// ParseDensities validates raw "src->dst" keys against the declared
// layers. Two keys naming the same pair, such as "2" and "2->2", are
// rejected.
func ParseDensities(raw map[string]float64, layers []Layer) (DensityTable, error) {
	declared := make(map[string]bool, len(layers))
	for _, l := range layers {
		declared[l.Name] = true
	}

	table := make(DensityTable)
	for key, density := range raw {
		src, dst, ok := strings.Cut(key, "->")
		if !ok {
			dst = src
		}
		src, dst = strings.TrimSpace(src), strings.TrimSpace(dst)
		if !declared[src] {
			return nil, fmt.Errorf("%w: density %q references undeclared layer %q", ErrConfiguration, key, src)
		}
		if !declared[dst] {
			return nil, fmt.Errorf("%w: density %q references undeclared layer %q", ErrConfiguration, key, dst)
		}
		if density < 0 || density > 1 || math.IsNaN(density) {
			return nil, fmt.Errorf("%w: density %q must be in [0, 1], got %g", ErrConfiguration, key, density)
		}
		if _, dup := table[src][dst]; dup {
			return nil, fmt.Errorf("%w: density %q duplicates another entry for %s->%s", ErrConfiguration, key, src, dst)
		}
		if table[src] == nil {
			table[src] = make(map[string]float64)
		}
		table[src][dst] = density
	}
	return table, nil
}

// Population is a set of neurons assigned to layers, ready to be wired.
type Population struct {
	neurons []Neuron
	index   []map[int]int
	layers  []Layer
	members map[string][]int
	frozen  bool
}

// BuildPopulation creates one neuron per layer slot. Ids are assigned in
// layer order, so the total is the sum of (possibly jittered) layer sizes.
func BuildPopulation(layers []Layer, jitter float64, rng *rand.Rand) (*Population, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layers declared", ErrConfiguration)
	}
	if jitter < 0 || jitter >= 1 {
		return nil, fmt.Errorf("%w: size jitter must be in [0, 1), got %g", ErrConfiguration, jitter)
	}

	p := &Population{
		layers:  make([]Layer, len(layers)),
		members: make(map[string][]int, len(layers)),
	}
	seen := make(map[string]bool, len(layers))
	for i, l := range layers {
		if l.Name == "" {
			return nil, fmt.Errorf("%w: layer %d has no name", ErrConfiguration, i)
		}
		if seen[l.Name] {
			return nil, fmt.Errorf("%w: layer %q declared twice", ErrConfiguration, l.Name)
		}
		seen[l.Name] = true
		if l.Size < 0 {
			return nil, fmt.Errorf("%w: layer %q has negative size %d", ErrConfiguration, l.Name, l.Size)
		}
		if l.ExcitatoryBias < 0 || l.ExcitatoryBias > 1 {
			return nil, fmt.Errorf("%w: layer %q excitatory bias must be in [0, 1], got %g", ErrConfiguration, l.Name, l.ExcitatoryBias)
		}

		size := l.Size
		if jitter > 0 && size > 0 {
			factor := 1 - jitter + 2*jitter*rng.Float64()
			size = int(math.Round(float64(size) * factor))
		}
		p.layers[i] = Layer{Name: l.Name, Size: size, ExcitatoryBias: l.ExcitatoryBias}

		for k := 0; k < size; k++ {
			id := len(p.neurons)
			p.neurons = append(p.neurons, Neuron{ID: id, Layer: l.Name})
			p.members[l.Name] = append(p.members[l.Name], id)
		}
	}

	if len(p.neurons) == 0 {
		return nil, fmt.Errorf("%w: population is empty", ErrConfiguration)
	}
	p.index = make([]map[int]int, len(p.neurons))
	return p, nil
}

// Len returns the number of neurons in the population.
func (p *Population) Len() int { return len(p.neurons) }

// Layers returns the layers with their realised sizes.
func (p *Population) Layers() []Layer {
	out := make([]Layer, len(p.layers))
	copy(out, p.layers)
	return out
}

// Members returns the ids of the neurons in the named layer.
func (p *Population) Members(layer string) []int {
	return p.members[layer]
}

// Wire adds the outgoing connections of every neuron in layer. For each
// destination layer with a non-zero density it draws round(density*|dst|)
// targets with replacement; self draws are repeated rather than filtered.
// Each edge is excitatory with probability bias. It returns the number of
// edges added.
func (p *Population) Wire(layer string, densities DensityTable, bias float64, rng *rand.Rand) (int, error) {
	if p.frozen {
		return 0, fmt.Errorf("%w: population already frozen", ErrConfiguration)
	}
	sources, ok := p.members[layer]
	if !ok {
		return 0, fmt.Errorf("%w: unknown layer %q", ErrConfiguration, layer)
	}
	if bias < 0 || bias > 1 {
		return 0, fmt.Errorf("%w: excitatory bias must be in [0, 1], got %g", ErrConfiguration, bias)
	}

	added := 0
	for _, src := range sources {
		for _, dstLayer := range p.layers {
			density := densities.Get(layer, dstLayer.Name)
			if density <= 0 {
				continue
			}
			targets := p.members[dstLayer.Name]
			if len(targets) == 0 {
				continue
			}
			draws := int(math.Round(density * float64(len(targets))))
			for d := 0; d < draws; d++ {
				target, ok := drawTarget(targets, src, rng)
				if !ok {
					continue
				}
				typ := Inhibitory
				if rng.Float64() < bias {
					typ = Excitatory
				}
				before := len(p.neurons[src].Edges)
				addEdge(&p.neurons[src], &p.index[src], target, typ)
				if len(p.neurons[src].Edges) > before {
					added++
				}
			}
		}
	}
	return added, nil
}

// drawTarget picks a random member other than self.
func drawTarget(members []int, self int, rng *rand.Rand) (int, bool) {
	if len(members) == 1 && members[0] == self {
		return 0, false
	}
	for attempt := 0; attempt < maxRedraws; attempt++ {
		target := members[rng.IntN(len(members))]
		if target != self {
			return target, true
		}
	}
	return 0, false
}

// Freeze returns the immutable graph. The population cannot be wired
// further afterwards.
func (p *Population) Freeze() *Graph {
	p.frozen = true
	return freeze(p.neurons, p.layers)
}

// Generate builds the population and wires every layer in declaration
// order. A table that yields no edges at all is a configuration error.
func Generate(spec Spec, rng *rand.Rand) (*Graph, error) {
	pop, err := BuildPopulation(spec.Layers, spec.SizeJitter, rng)
	if err != nil {
		return nil, err
	}
	table, err := ParseDensities(spec.Densities, spec.Layers)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, l := range pop.layers {
		n, err := pop.Wire(l.Name, table, l.ExcitatoryBias, rng)
		if err != nil {
			return nil, fmt.Errorf("wiring layer %q: %w", l.Name, err)
		}
		total += n
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: density table produced no edges", ErrConfiguration)
	}
	return pop.Freeze(), nil
}

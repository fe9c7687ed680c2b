// Package visualization renders connectivity graphs and cascade activity
// in various output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/MontagueM/NeuronImperialProject/internal/network"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// edgeStyles maps connection types to DOT attributes.
var edgeStyles = map[network.ConnectionType]string{
	network.Excitatory: `color="red", style=solid`,
	network.Inhibitory: `color="blue", style=dashed`,
}

// layerColors fills neuron nodes by layer position, cycling when a graph
// has more layers than colors.
var layerColors = []string{
	"lightgoldenrod", "lightblue", "palegreen", "lightsalmon",
	"plum", "lightcyan", "wheat", "thistle",
}

// RenderDOT produces a Graphviz DOT representation of the graph. Each
// layer is a cluster; excitatory edges are solid red and inhibitory edges
// dashed blue.
func RenderDOT(g *network.Graph) string {
	var b strings.Builder
	b.WriteString("digraph neuronsim {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\", fontsize=8];\n")
	b.WriteString("  edge [arrowsize=0.5];\n\n")

	for i, layer := range g.Layers() {
		fmt.Fprintf(&b, "  subgraph %q {\n", "cluster_"+layer.Name)
		fmt.Fprintf(&b, "    label=%q;\n", "layer "+layer.Name)
		color := layerColors[i%len(layerColors)]
		for _, id := range g.Members(layer.Name) {
			fmt.Fprintf(&b, "    %s [label=\"%d\", fillcolor=%q];\n", nodeID(id), id, color)
		}
		b.WriteString("  }\n")
	}
	b.WriteString("\n")

	for id := 0; id < g.Len(); id++ {
		for _, e := range g.Edges(id) {
			fmt.Fprintf(&b, "  %s -> %s [%s];\n", nodeID(id), nodeID(e.Target), edgeStyles[e.Type])
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON graph representation with nodes, edges and
// per-layer statistics.
func RenderJSON(g *network.Graph) map[string]interface{} {
	nodes := make([]map[string]interface{}, 0, g.Len())
	edges := make([]map[string]interface{}, 0, g.EdgeCount())
	for id := 0; id < g.Len(); id++ {
		n, _ := g.Neuron(id)
		nodes = append(nodes, map[string]interface{}{
			"id":        id,
			"layer":     n.Layer,
			"out_edges": len(n.Edges),
		})
		for _, e := range n.Edges {
			edges = append(edges, map[string]interface{}{
				"source": id,
				"target": e.Target,
				"type":   e.Type.String(),
			})
		}
	}

	return map[string]interface{}{
		"nodes":      nodes,
		"edges":      edges,
		"layers":     g.Stats(),
		"node_count": len(nodes),
		"edge_count": len(edges),
	}
}

func nodeID(id int) string {
	return fmt.Sprintf("n%d", id)
}

package visualization

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/MontagueM/NeuronImperialProject/internal/network"
)

// twoLayerGraph has layers A (0, 1) and B (2) with one edge of each type.
func twoLayerGraph(t *testing.T) *network.Graph {
	t.Helper()
	b := network.NewBuilder()
	b.AddNeuron("A")
	b.AddNeuron("A")
	b.AddNeuron("B")
	if err := b.Connect(0, 2, network.Excitatory); err != nil {
		t.Fatal(err)
	}
	if err := b.Connect(2, 1, network.Inhibitory); err != nil {
		t.Fatal(err)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return g
}

func TestRenderDOT(t *testing.T) {
	dot := RenderDOT(twoLayerGraph(t))

	if !strings.HasPrefix(dot, "digraph neuronsim {") {
		t.Error("expected digraph header")
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Error("expected closing brace")
	}
	for _, want := range []string{
		`subgraph "cluster_A"`,
		`subgraph "cluster_B"`,
		`n0 [label="0"`,
		`n2 [label="2"`,
		`n0 -> n2 [color="red", style=solid]`,
		`n2 -> n1 [color="blue", style=dashed]`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
	if strings.Count(dot, "->") != 2 {
		t.Errorf("expected 2 edges, got %d", strings.Count(dot, "->"))
	}
}

func TestRenderDOT_ClusterMembership(t *testing.T) {
	dot := RenderDOT(twoLayerGraph(t))
	start := strings.Index(dot, `subgraph "cluster_B"`)
	end := strings.Index(dot[start:], "}")
	cluster := dot[start : start+end]
	if !strings.Contains(cluster, "n2 ") || strings.Contains(cluster, "n0 ") {
		t.Errorf("cluster B has wrong members:\n%s", cluster)
	}
}

func TestRenderJSON(t *testing.T) {
	result := RenderJSON(twoLayerGraph(t))

	if result["node_count"] != 3 {
		t.Errorf("node_count = %v, want 3", result["node_count"])
	}
	if result["edge_count"] != 2 {
		t.Errorf("edge_count = %v, want 2", result["edge_count"])
	}
	edges := result["edges"].([]map[string]interface{})
	if edges[1]["type"] != "inhibitory" || edges[1]["source"] != 2 || edges[1]["target"] != 1 {
		t.Errorf("edge[1] = %v", edges[1])
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"layer":"B"`) {
		t.Errorf("JSON missing layer field: %s", data)
	}
}

package visualization

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MontagueM/NeuronImperialProject/internal/activity"
	"github.com/MontagueM/NeuronImperialProject/internal/propagation"
	"github.com/MontagueM/NeuronImperialProject/internal/waveform"
)

func testTemplate() *waveform.Template {
	return &waveform.Template{
		Samples:        []waveform.Sample{{T: 0, V: -62}, {T: 1, V: 40}, {T: 3, V: -70}, {T: 5, V: -62}},
		CompletionTime: 1,
		Fired:          true,
	}
}

func TestPlotActivity(t *testing.T) {
	tests := []struct {
		name string
		h    activity.Histogram
		file string
	}{
		{"png", activity.Histogram{Times: []float64{1.9, 3.8, 5.7}, Counts: []int{1, 3, 2}}, "activity.png"},
		{"svg", activity.Histogram{Times: []float64{1.9}, Counts: []int{1}}, "activity.svg"},
		{"empty", activity.Histogram{Times: []float64{}, Counts: []int{}}, "empty.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := PlotActivity(tt.h, path); err != nil {
				t.Fatalf("PlotActivity() error = %v", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("plot not written: %v", err)
			}
			if info.Size() == 0 {
				t.Error("plot file is empty")
			}
		})
	}
}

func TestPlotActivity_UnsupportedFormat(t *testing.T) {
	h := activity.Histogram{Times: []float64{1}, Counts: []int{1}}
	err := PlotActivity(h, filepath.Join(t.TempDir(), "activity.txt"))
	if err == nil || !strings.Contains(err.Error(), "unsupported plot format") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}

func TestWriteActivity_SVG(t *testing.T) {
	var buf bytes.Buffer
	h := activity.Histogram{Times: []float64{1.9, 3.8}, Counts: []int{1, 2}}
	if err := WriteActivity(&buf, h, "svg"); err != nil {
		t.Fatalf("WriteActivity() error = %v", err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Error("expected SVG output")
	}
}

func TestTracesPlot(t *testing.T) {
	events := []propagation.FiringEvent{
		{Neuron: 0, Time: 1},
		{Neuron: 1, Time: 2},
		{Neuron: 0, Time: 6},
		{Neuron: 7, Time: 3},
	}
	p, err := TracesPlot(testTemplate(), events, 2)
	if err != nil {
		t.Fatalf("TracesPlot() error = %v", err)
	}
	// Two firings of neuron 0 plus one of neuron 1; neuron 7 is outside n.
	if p.X.Min != 0 || p.X.Max != 10 {
		t.Errorf("x range = [%v, %v], want [0, 10]", p.X.Min, p.X.Max)
	}
	if p.Y.Min != -70 || p.Y.Max != 40 {
		t.Errorf("y range = [%v, %v], want [-70, 40]", p.Y.Min, p.Y.Max)
	}
}

func TestPlotTraces(t *testing.T) {
	events := []propagation.FiringEvent{{Neuron: 0, Time: 1}, {Neuron: 1, Time: 2}}
	path := filepath.Join(t.TempDir(), "traces.png")
	if err := PlotTraces(testTemplate(), events, 2, path); err != nil {
		t.Fatalf("PlotTraces() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("traces not written: %v", err)
	}

	empty := filepath.Join(t.TempDir(), "empty.svg")
	if err := PlotTraces(testTemplate(), nil, 3, empty); err != nil {
		t.Fatalf("PlotTraces() with no events error = %v", err)
	}
}

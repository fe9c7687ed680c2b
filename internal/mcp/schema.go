package mcp

import (
	"github.com/MontagueM/NeuronImperialProject/internal/activity"
	"github.com/MontagueM/NeuronImperialProject/internal/network"
	"github.com/MontagueM/NeuronImperialProject/internal/propagation"
	"github.com/MontagueM/NeuronImperialProject/internal/waveform"
)

// SimulateInput defines the input for the neuronsim_simulate tool. Unset
// fields keep the server's configured values.
type SimulateInput struct {
	Preset         string   `json:"preset,omitempty" jsonschema:"Built-in network to start from: cortical or flat"`
	HorizonMS      *float64 `json:"horizon_ms,omitempty" jsonschema:"Simulated time limit in ms"`
	RefractoryMS   *float64 `json:"refractory_ms,omitempty" jsonschema:"Minimum spacing in ms between two firings of one neuron"`
	ExcitatoryProb *float64 `json:"excitatory_prob,omitempty" jsonschema:"Transmission probability of excitatory edges (0.0-1.0)"`
	InhibitoryProb *float64 `json:"inhibitory_prob,omitempty" jsonschema:"Transmission probability of inhibitory edges (0.0-1.0)"`
	Mode           string   `json:"mode,omitempty" jsonschema:"Transmission mode: gated or eager"`
	RNGSeed        uint64   `json:"rng_seed,omitempty" jsonschema:"Random seed for network and cascade; 0 keeps the configured seed"`
	Seeds          []int    `json:"seeds,omitempty" jsonschema:"Neurons to stimulate; one independent cascade each. Empty uses the seed policy"`
	BinWidth       *float64 `json:"bin_width,omitempty" jsonschema:"Histogram bin width in ms; 0 keeps exact firing times"`
	IncludeEvents  bool     `json:"include_events,omitempty" jsonschema:"Include every firing event in the output"`
}

// SimulateOutput defines the output for the neuronsim_simulate tool.
type SimulateOutput struct {
	RunID      string                    `json:"run_id" jsonschema:"ID of the stored run"`
	Population int                       `json:"population" jsonschema:"Number of neurons in the generated network"`
	EdgeCount  int                       `json:"edge_count" jsonschema:"Number of directed connections"`
	RNGSeed    uint64                    `json:"rng_seed" jsonschema:"Random seed used; pass it back to reproduce the run"`
	Seeds      []int                     `json:"seeds" jsonschema:"Stimulated neurons"`
	EventCount int                       `json:"event_count" jsonschema:"Total number of firing events"`
	Truncated  bool                      `json:"truncated" jsonschema:"Whether a safety cap stopped a cascade early"`
	Rate       float64                   `json:"rate" jsonschema:"Mean firings per neuron per ms"`
	PeakTime   float64                   `json:"peak_time" jsonschema:"Time of the busiest bin"`
	PeakCount  int                       `json:"peak_count" jsonschema:"Firings in the busiest bin"`
	Histogram  activity.Histogram        `json:"histogram" jsonschema:"Firing counts per time bin"`
	Stats      propagation.Stats         `json:"stats" jsonschema:"Cascade outcome counters"`
	Layers     []network.LayerStats      `json:"layers" jsonschema:"Per-layer neuron and edge counts"`
	Events     []propagation.FiringEvent `json:"events,omitempty" jsonschema:"Firing events, when requested"`
	DurationMS int64                     `json:"duration_ms" jsonschema:"Wall-clock time of the run"`
	Message    string                    `json:"message" jsonschema:"Human-readable summary"`
}

// WaveformInput defines the input for the neuronsim_waveform tool.
type WaveformInput struct {
	ActivationConstant float64 `json:"activation_constant,omitempty" jsonschema:"Stimulus current constant; 0 keeps the configured value"`
	TimeScale          float64 `json:"time_scale,omitempty" jsonschema:"Multiplier from integration time to ms; 0 keeps the configured value"`
	IncludeSamples     bool    `json:"include_samples,omitempty" jsonschema:"Include the full voltage trace"`
}

// WaveformOutput defines the output for the neuronsim_waveform tool.
type WaveformOutput struct {
	CompletionTime float64           `json:"completion_time" jsonschema:"Time in ms from stimulus arrival to spike completion"`
	Fired          bool              `json:"fired" jsonschema:"Whether the stimulus crossed threshold"`
	PeakMV         float64           `json:"peak_mv" jsonschema:"Maximum membrane voltage in mV"`
	DurationMS     float64           `json:"duration_ms" jsonschema:"Time span of the trace"`
	SampleCount    int               `json:"sample_count" jsonschema:"Number of trace samples"`
	Samples        []waveform.Sample `json:"samples,omitempty" jsonschema:"Voltage trace, when requested"`
}

// HistoryInput defines the input for the neuronsim_history tool.
type HistoryInput struct {
	ID    string `json:"id,omitempty" jsonschema:"Run ID to show in full; empty lists recent runs"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum runs to list (default: 20)"`
}

// HistoryOutput defines the output for the neuronsim_history tool.
type HistoryOutput struct {
	Runs  []RunSummary `json:"runs,omitempty" jsonschema:"Recent runs, newest first"`
	Run   *RunDetail   `json:"run,omitempty" jsonschema:"The requested run"`
	Count int          `json:"count" jsonschema:"Number of runs returned"`
}

// RunSummary is a stored run without its histogram.
type RunSummary struct {
	ID             string  `json:"id"`
	CreatedAt      string  `json:"created_at"`
	HorizonMS      float64 `json:"horizon_ms"`
	ExcitatoryProb float64 `json:"excitatory_prob"`
	Population     int     `json:"population"`
	RNGSeed        uint64  `json:"rng_seed"`
	Seeds          []int   `json:"seeds"`
	EventCount     int     `json:"event_count"`
	Truncated      bool    `json:"truncated"`
}

// RunDetail is a stored run with its histogram and configuration.
type RunDetail struct {
	RunSummary
	RefractoryMS   float64            `json:"refractory_ms"`
	InhibitoryProb float64            `json:"inhibitory_prob"`
	Mode           string             `json:"mode"`
	EdgeCount      int                `json:"edge_count"`
	DurationMS     int64              `json:"duration_ms"`
	Histogram      activity.Histogram `json:"histogram"`
	Config         string             `json:"config,omitempty"`
}

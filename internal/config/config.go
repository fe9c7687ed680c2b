// Package config provides unified configuration loading for neuronsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MontagueM/NeuronImperialProject/internal/network"
	"github.com/MontagueM/NeuronImperialProject/internal/propagation"
	"github.com/MontagueM/NeuronImperialProject/internal/waveform"
)

// Seed policies.
const (
	SeedFixed  = "fixed"
	SeedRandom = "random"
)

// DirName is the per-project state directory.
const DirName = ".neuronsim"

// SimConfig contains all neuronsim configuration settings.
type SimConfig struct {
	// Network describes the layered population and its wiring.
	Network NetworkConfig `json:"network" yaml:"network"`

	// Propagation contains the cascade parameters.
	Propagation PropagationConfig `json:"propagation" yaml:"propagation"`

	// Waveform tunes the single-neuron template.
	Waveform WaveformConfig `json:"waveform" yaml:"waveform"`

	// Seed chooses the neuron that starts the cascade and the RNG seed.
	Seed SeedConfig `json:"seed" yaml:"seed"`

	// Output controls histogram binning and the run artifacts.
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LayerConfig declares one layer. The position in the list is the wiring order.
type LayerConfig struct {
	Name           string  `json:"name" yaml:"name"`
	Size           int     `json:"size" yaml:"size"`
	ExcitatoryBias float64 `json:"excitatory_bias" yaml:"excitatory_bias"`
}

// NetworkConfig describes the random layered network.
type NetworkConfig struct {
	Layers []LayerConfig `json:"layers" yaml:"layers"`

	// Densities maps "src->dst" (or a bare "src" for "src->src") to the
	// fraction of the destination layer each source neuron connects to.
	Densities map[string]float64 `json:"densities" yaml:"densities"`

	// SizeJitter scales each layer size by a random factor in [1-j, 1+j].
	SizeJitter float64 `json:"size_jitter" yaml:"size_jitter"`
}

// PropagationConfig configures the cascade.
type PropagationConfig struct {
	HorizonMS      float64 `json:"horizon_ms" yaml:"horizon_ms"`
	RefractoryMS   float64 `json:"refractory_ms" yaml:"refractory_ms"`
	ExcitatoryProb float64 `json:"excitatory_prob" yaml:"excitatory_prob"`
	InhibitoryProb float64 `json:"inhibitory_prob" yaml:"inhibitory_prob"`
	MaxEvents      int     `json:"max_events" yaml:"max_events"`
	MaxStackDepth  int     `json:"max_stack_depth" yaml:"max_stack_depth"`
	Mode           string  `json:"mode" yaml:"mode"`
}

// WaveformConfig overrides selected template parameters. Zero values keep
// the defaults.
type WaveformConfig struct {
	// ActivationConstant multiplies the baseline voltage increments.
	ActivationConstant float64 `json:"activation_constant" yaml:"activation_constant"`

	// TimeScale converts integration time to simulated milliseconds.
	TimeScale float64 `json:"time_scale" yaml:"time_scale"`

	// SubSteps is the number of integrator steps per output sample.
	SubSteps int `json:"sub_steps" yaml:"sub_steps"`
}

// SeedConfig selects the cascade seed.
type SeedConfig struct {
	// Policy is "fixed" (use Index) or "random" (uniform over the population).
	Policy string `json:"policy" yaml:"policy"`

	// Index is the seed neuron id under the fixed policy.
	Index int `json:"index" yaml:"index"`

	// RNGSeed makes runs reproducible. Zero draws a fresh seed per run.
	RNGSeed uint64 `json:"rng_seed" yaml:"rng_seed"`
}

// OutputConfig controls what a run produces.
type OutputConfig struct {
	// BinWidth groups firing times into fixed-width bins; 0 keeps exact times.
	BinWidth float64 `json:"bin_width" yaml:"bin_width"`

	// HzDivisor scales per-bin counts for reporting.
	HzDivisor float64 `json:"hz_divisor" yaml:"hz_divisor"`

	// ActivityLog is the append-only text artifact, relative to the state
	// directory unless absolute. Empty disables it.
	ActivityLog string `json:"activity_log" yaml:"activity_log"`

	// Workers bounds parallel seed cascades.
	Workers int `json:"workers" yaml:"workers"`
}

// LoggingConfig configures neuronsim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to .neuronsim/decisions.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns the cortical column configuration.
func Default() *SimConfig {
	return &SimConfig{
		Network: NetworkConfig{
			Layers:    corticalLayers(),
			Densities: corticalDensities(),
		},
		Propagation: PropagationConfig{
			HorizonMS:      200,
			RefractoryMS:   2,
			ExcitatoryProb: 0.8,
			InhibitoryProb: 0.2,
			MaxEvents:      1_000_000,
			MaxStackDepth:  1_000_000,
			Mode:           string(propagation.ModeGated),
		},
		Seed: SeedConfig{
			Policy: SeedRandom,
		},
		Output: OutputConfig{
			BinWidth:    0,
			HzDivisor:   60,
			ActivityLog: "activity.txt",
			Workers:     4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func corticalLayers() []LayerConfig {
	return []LayerConfig{
		{Name: "1", Size: 26, ExcitatoryBias: 0},
		{Name: "2", Size: 653, ExcitatoryBias: 0.80},
		{Name: "3", Size: 1268, ExcitatoryBias: 0.89},
		{Name: "4", Size: 1796, ExcitatoryBias: 0.92},
		{Name: "5a", Size: 544, ExcitatoryBias: 0.80},
		{Name: "5b", Size: 772, ExcitatoryBias: 0.80},
		{Name: "6", Size: 1450, ExcitatoryBias: 0.90},
	}
}

func corticalDensities() map[string]float64 {
	return map[string]float64{
		"1->1":   0.05,
		"2->2":   0.10,
		"2->3":   0.05,
		"2->5a":  0.15,
		"2->5b":  0.10,
		"3->3":   0.2,
		"3->2":   0.2,
		"3->5a":  0.05,
		"3->5b":  0.15,
		"4->4":   0.25,
		"4->2":   0.15,
		"4->3":   0.15,
		"4->5a":  0.15,
		"4->5b":  0.10,
		"4->6":   0.05,
		"5a->5a": 0.2,
		"5a->2":  0.05,
		"5a->5b": 0.10,
		"5a->6":  0.05,
		"5b->5b": 0.10,
		"5b->6":  0.10,
		"6->6":   0.025,
	}
}

// FlatPreset returns a single-layer random network of 100 neurons with
// ten outgoing connections each.
func FlatPreset() *SimConfig {
	c := Default()
	c.Network = NetworkConfig{
		Layers:    []LayerConfig{{Name: "flat", Size: 100, ExcitatoryBias: 0.2}},
		Densities: map[string]float64{"flat": 0.1},
	}
	return c
}

// Preset returns a named built-in configuration.
func Preset(name string) (*SimConfig, error) {
	switch name {
	case "", "cortical":
		return Default(), nil
	case "flat":
		return FlatPreset(), nil
	default:
		return nil, fmt.Errorf("unknown preset: %s (valid: cortical, flat)", name)
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.neuronsim/config.yaml -> environment variables
func Load() (*SimConfig, error) {
	config := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, DirName, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Settings the
// file leaves out keep their defaults; a densities table in the file
// replaces the default table rather than merging with it.
func LoadFromFile(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return parse(data, Default())
}

// LoadPath loads defaults, the file at path when non-empty, and then
// environment overrides. An empty path behaves like Load.
func LoadPath(path string) (*SimConfig, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

func parse(data []byte, base *SimConfig) (*SimConfig, error) {
	defaults := base.Network.Densities
	base.Network.Densities = nil
	if err := yaml.Unmarshal(data, base); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if base.Network.Densities == nil {
		base.Network.Densities = defaults
	}
	base.Output.ActivityLog = expandEnvVars(base.Output.ActivityLog)
	return base, nil
}

// Marshal renders the configuration as YAML.
func (c *SimConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks that the configuration is valid.
func (c *SimConfig) Validate() error {
	if len(c.Network.Layers) == 0 {
		return fmt.Errorf("network.layers must declare at least one layer")
	}
	if _, err := network.ParseDensities(c.Network.Densities, c.NetworkSpec().Layers); err != nil {
		return err
	}
	if c.Network.SizeJitter < 0 || c.Network.SizeJitter >= 1 {
		return fmt.Errorf("size_jitter must be in [0, 1), got %f", c.Network.SizeJitter)
	}

	if err := c.PropagationConfig().Validate(); err != nil {
		return err
	}
	if err := c.WaveformParams().Validate(); err != nil {
		return err
	}

	switch c.Seed.Policy {
	case SeedFixed, SeedRandom:
	default:
		return fmt.Errorf("invalid seed policy: %s (valid: fixed, random)", c.Seed.Policy)
	}
	if c.Seed.Index < 0 {
		return fmt.Errorf("seed index must be non-negative, got %d", c.Seed.Index)
	}

	if c.Output.BinWidth < 0 {
		return fmt.Errorf("bin_width must be non-negative, got %f", c.Output.BinWidth)
	}
	if c.Output.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Output.Workers)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *SimConfig) Clone() *SimConfig {
	out := *c
	out.Network.Layers = append([]LayerConfig(nil), c.Network.Layers...)
	if c.Network.Densities != nil {
		out.Network.Densities = make(map[string]float64, len(c.Network.Densities))
		for k, v := range c.Network.Densities {
			out.Network.Densities[k] = v
		}
	}
	return &out
}

// NetworkSpec converts the network section to a generator spec.
func (c *SimConfig) NetworkSpec() network.Spec {
	layers := make([]network.Layer, len(c.Network.Layers))
	for i, l := range c.Network.Layers {
		layers[i] = network.Layer{Name: l.Name, Size: l.Size, ExcitatoryBias: l.ExcitatoryBias}
	}
	densities := make(map[string]float64, len(c.Network.Densities))
	for k, v := range c.Network.Densities {
		densities[k] = v
	}
	return network.Spec{Layers: layers, Densities: densities, SizeJitter: c.Network.SizeJitter}
}

// PropagationConfig converts the propagation section to engine settings.
func (c *SimConfig) PropagationConfig() propagation.Config {
	return propagation.Config{
		Horizon:               c.Propagation.HorizonMS,
		Refractory:            c.Propagation.RefractoryMS,
		ExcitatoryProbability: c.Propagation.ExcitatoryProb,
		InhibitoryProbability: c.Propagation.InhibitoryProb,
		MaxEvents:             c.Propagation.MaxEvents,
		MaxStackDepth:         c.Propagation.MaxStackDepth,
		Mode:                  propagation.Mode(c.Propagation.Mode),
	}
}

// WaveformParams returns the template parameters with overrides applied.
func (c *SimConfig) WaveformParams() waveform.Params {
	p := waveform.DefaultParams()
	if c.Waveform.ActivationConstant != 0 {
		p.ActivationConstant = c.Waveform.ActivationConstant
	}
	if c.Waveform.TimeScale != 0 {
		p.TimeScale = c.Waveform.TimeScale
	}
	if c.Waveform.SubSteps != 0 {
		p.SubSteps = c.Waveform.SubSteps
	}
	return p
}

// Population returns the configured (unjittered) neuron count.
func (c *SimConfig) Population() int {
	n := 0
	for _, l := range c.Network.Layers {
		n += l.Size
	}
	return n
}

// applyEnvOverrides applies environment variable overrides to the config.
// Values that fail to parse are ignored.
func applyEnvOverrides(config *SimConfig) {
	if v := os.Getenv("NEURONSIM_HORIZON_MS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Propagation.HorizonMS = f
		}
	}

	if v := os.Getenv("NEURONSIM_REFRACTORY_MS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Propagation.RefractoryMS = f
		}
	}

	if v := os.Getenv("NEURONSIM_EXCITATORY_PROB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Propagation.ExcitatoryProb = f
		}
	}

	if v := os.Getenv("NEURONSIM_INHIBITORY_PROB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Propagation.InhibitoryProb = f
		}
	}

	if v := os.Getenv("NEURONSIM_MODE"); v != "" {
		config.Propagation.Mode = strings.ToLower(v)
	}

	if v := os.Getenv("NEURONSIM_RNG_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Seed.RNGSeed = n
		}
	}

	if v := os.Getenv("NEURONSIM_SEED_POLICY"); v != "" {
		config.Seed.Policy = strings.ToLower(v)
	}

	if v := os.Getenv("NEURONSIM_SEED_INDEX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Seed.Index = n
		}
	}

	if v := os.Getenv("NEURONSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

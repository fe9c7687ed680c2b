// Package waveform precomputes the action-potential template shared by
// every neuron in a simulation run.
//
// The template is produced once by integrating a Hodgkin-Huxley style
// membrane under a three-phase current protocol (quiescent baseline,
// depolarizing pulse, recovery). Neurons never integrate anything
// themselves: they replay the template shifted to their arrival time.
package waveform

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidParams is returned when template parameters cannot produce a trace.
var ErrInvalidParams = errors.New("invalid waveform parameters")

// Params configures the template computation.
type Params struct {
	Membrane Membrane
	Initial  State

	// RestingPotential is the floor the perturbation heuristic falls back
	// to when a stimulus fails to reach threshold (mV).
	RestingPotential float64

	// Threshold is the voltage the heuristic must exceed to fire (mV).
	Threshold float64

	// TriggerStep is the baseline step after which the rising
	// perturbation starts.
	TriggerStep int

	// ActivationConstant scales the rising perturbation. Too small and
	// the neuron fails to fire.
	ActivationConstant float64

	// MaxBaselineSteps bounds the 1 ms baseline phase.
	MaxBaselineSteps int

	DepolarizeDuration float64 // ms
	DepolarizeCurrent  float64
	DepolarizeSamples  int

	// DiscardFraction is the leading share of the depolarizing samples
	// dropped while the pulse settles.
	DiscardFraction float64

	// DepolarizeOffset is added to every depolarizing-phase voltage (mV).
	DepolarizeOffset float64

	RecoveryDuration float64 // ms
	RecoverySamples  int

	// SubSteps is the number of integration steps between output samples.
	SubSteps int

	// TimeScale converts the protocol clock to simulation milliseconds.
	TimeScale float64
}

// DefaultParams returns the protocol used for production runs. These
// values always produce a firing template.
func DefaultParams() Params {
	return Params{
		Membrane: Membrane{
			EL:  -54.4,
			ENa: 50,
			EK:  -70,
			GL:  0.3,
			GNa: 120,
			GK:  36,
			C:   1e-6,
		},
		Initial:            State{N: 0.5, M: 0, H: 0, V: -62},
		RestingPotential:   -62,
		Threshold:          -55,
		TriggerStep:        10,
		ActivationConstant: 2,
		MaxBaselineSteps:   100,
		DepolarizeDuration: 3,
		DepolarizeCurrent:  1,
		DepolarizeSamples:  1000,
		DiscardFraction:    0.2,
		DepolarizeOffset:   10,
		RecoveryDuration:   30,
		RecoverySamples:    1000,
		SubSteps:           10,
		TimeScale:          0.1,
	}
}

// Validate reports whether the parameters can produce a trace.
func (p Params) Validate() error {
	switch {
	case p.Membrane.C <= 0:
		return fmt.Errorf("%w: capacitance must be positive, got %g", ErrInvalidParams, p.Membrane.C)
	case p.MaxBaselineSteps <= 0:
		return fmt.Errorf("%w: max_baseline_steps must be positive, got %d", ErrInvalidParams, p.MaxBaselineSteps)
	case p.DepolarizeDuration <= 0 || p.RecoveryDuration <= 0:
		return fmt.Errorf("%w: phase durations must be positive", ErrInvalidParams)
	case p.DepolarizeSamples < 2 || p.RecoverySamples < 2:
		return fmt.Errorf("%w: each phase needs at least 2 samples", ErrInvalidParams)
	case p.DiscardFraction < 0 || p.DiscardFraction >= 1:
		return fmt.Errorf("%w: discard_fraction must be in [0, 1), got %g", ErrInvalidParams, p.DiscardFraction)
	case p.TimeScale <= 0:
		return fmt.Errorf("%w: time_scale must be positive, got %g", ErrInvalidParams, p.TimeScale)
	case p.RestingPotential >= p.Threshold:
		return fmt.Errorf("%w: resting potential %g must be below threshold %g", ErrInvalidParams, p.RestingPotential, p.Threshold)
	}
	return nil
}

// Sample is one point of the template trace.
type Sample struct {
	T float64 // ms, relative to stimulus arrival
	V float64 // mV
}

// Template is an immutable precomputed action potential. It is shared by
// pointer across every neuron of a run and must not be modified.
type Template struct {
	Samples []Sample

	// CompletionTime is the time, relative to stimulus arrival, at which
	// the spike is considered complete: the end of the depolarizing pulse,
	// or the end of the trace when the neuron did not fire.
	CompletionTime float64

	// CompletionIndex is the index of the last sample at or before
	// CompletionTime.
	CompletionIndex int

	// Fired reports whether the stimulus crossed threshold.
	Fired bool
}

// Duration returns the time span of the trace.
func (t *Template) Duration() float64 {
	if len(t.Samples) == 0 {
		return 0
	}
	return t.Samples[len(t.Samples)-1].T
}

// Peak returns the maximum voltage of the trace.
func (t *Template) Peak() float64 {
	if len(t.Samples) == 0 {
		return math.NaN()
	}
	return floats.Max(t.Voltages())
}

// Voltages returns a copy of the voltage column.
func (t *Template) Voltages() []float64 {
	out := make([]float64, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s.V
	}
	return out
}

// Shift returns a copy of the trace translated to start at the given
// absolute time.
func (t *Template) Shift(start float64) []Sample {
	out := make([]Sample, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = Sample{T: s.T + start, V: s.V}
	}
	return out
}

// VoltageAt returns the linearly interpolated voltage at relative time
// rel. Times outside the trace clamp to the first or last sample.
func (t *Template) VoltageAt(rel float64) float64 {
	n := len(t.Samples)
	if n == 0 {
		return math.NaN()
	}
	if rel <= t.Samples[0].T {
		return t.Samples[0].V
	}
	if rel >= t.Samples[n-1].T {
		return t.Samples[n-1].V
	}
	i := sort.Search(n, func(i int) bool { return t.Samples[i].T >= rel })
	a, b := t.Samples[i-1], t.Samples[i]
	frac := (rel - a.T) / (b.T - a.T)
	return a.V + frac*(b.V-a.V)
}

// Compute integrates the membrane under the three-phase protocol and
// returns the resulting template. A stimulus that never crosses threshold
// still yields a trace, with Fired set to false.
func Compute(p Params) (*Template, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var samples []Sample
	state := p.Initial
	fired := false

	// Phase 1: quiescent baseline. The membrane is integrated at rest while
	// a smooth rising perturbation pushes the recorded voltage toward
	// threshold. If the perturbation falls back to rest the spike aborts.
	testV := p.Initial.V
	baselineEnd := 0.0
	oneMs := make([]float64, 2)
	for i := 0; i < p.MaxBaselineSteps; i++ {
		if i > p.TriggerStep {
			testV += math.Sin(math.Pi/12*float64(i-p.TriggerStep)) * p.ActivationConstant
			if testV <= p.RestingPotential {
				break
			}
		}
		_, state = p.Membrane.Integrate(state, floats.Span(oneMs, float64(i), float64(i+1)), 0, p.SubSteps)
		samples = append(samples, Sample{T: float64(i), V: testV})
		baselineEnd = float64(i)
		if testV > p.Threshold {
			fired = true
			state.V = testV
			break
		}
	}

	// Phase 2: brief depolarizing pulse, only when threshold was crossed.
	completion := baselineEnd
	if fired {
		times := floats.Span(make([]float64, p.DepolarizeSamples), baselineEnd, baselineEnd+p.DepolarizeDuration)
		volts, next := p.Membrane.Integrate(state, times, p.DepolarizeCurrent, p.SubSteps)
		state = next
		skip := int(float64(len(times)) * p.DiscardFraction)
		if skip < 1 {
			skip = 1
		}
		for k := skip; k < len(times); k++ {
			samples = append(samples, Sample{T: times[k], V: volts[k] + p.DepolarizeOffset})
		}
		completion = times[len(times)-1]
	}

	// Phase 3: return to baseline.
	start := completion
	times := floats.Span(make([]float64, p.RecoverySamples), start, start+p.RecoveryDuration)
	volts, _ := p.Membrane.Integrate(state, times, 0, p.SubSteps)
	for k := 1; k < len(times); k++ {
		samples = append(samples, Sample{T: times[k], V: volts[k]})
	}
	if !fired {
		completion = times[len(times)-1]
	}

	completionIndex := 0
	for i := range samples {
		samples[i].T *= p.TimeScale
	}
	completion *= p.TimeScale
	for i, s := range samples {
		if s.T <= completion {
			completionIndex = i
		}
	}

	return &Template{
		Samples:         samples,
		CompletionTime:  completion,
		CompletionIndex: completionIndex,
		Fired:           fired,
	}, nil
}

// Provider computes a template at most once and hands out the shared,
// read-only result. It is safe for concurrent use.
type Provider struct {
	params Params
	once   sync.Once
	tmpl   *Template
	err    error
}

// NewProvider creates a provider for the given parameters.
func NewProvider(p Params) *Provider {
	return &Provider{params: p}
}

// Template returns the shared template, computing it on first use.
func (pr *Provider) Template() (*Template, error) {
	pr.once.Do(func() {
		pr.tmpl, pr.err = Compute(pr.params)
	})
	return pr.tmpl, pr.err
}

// Compute satisfies the external provider contract: the time column, the
// voltage column and the spike completion time.
func (pr *Provider) Compute() ([]float64, []float64, float64, error) {
	t, err := pr.Template()
	if err != nil {
		return nil, nil, 0, err
	}
	times := make([]float64, len(t.Samples))
	for i, s := range t.Samples {
		times[i] = s.T
	}
	return times, t.Voltages(), t.CompletionTime, nil
}

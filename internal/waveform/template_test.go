package waveform

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func TestCompute_DefaultFires(t *testing.T) {
	tmpl, err := Compute(DefaultParams())
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	if !tmpl.Fired {
		t.Fatal("expected default template to fire")
	}
	// Threshold is crossed on baseline step 16, then a 3 ms pulse, scaled by 0.1.
	if math.Abs(tmpl.CompletionTime-1.9) > 1e-9 {
		t.Errorf("CompletionTime = %v, want 1.9", tmpl.CompletionTime)
	}
	if got := tmpl.Samples[tmpl.CompletionIndex].T; math.Abs(got-tmpl.CompletionTime) > 1e-9 {
		t.Errorf("sample at CompletionIndex has T = %v, want %v", got, tmpl.CompletionTime)
	}
	if peak := tmpl.Peak(); peak < 0 {
		t.Errorf("expected an overshooting spike, peak = %v mV", peak)
	}
	// 17 baseline + 800 kept depolarizing + 999 recovery samples.
	if len(tmpl.Samples) != 1816 {
		t.Errorf("len(Samples) = %d, want 1816", len(tmpl.Samples))
	}
}

func TestCompute_TimesStrictlyIncreasing(t *testing.T) {
	for _, k := range []float64{2, 0.5} {
		p := DefaultParams()
		p.ActivationConstant = k
		tmpl, err := Compute(p)
		if err != nil {
			t.Fatalf("Compute(k=%v) error = %v", k, err)
		}
		for i := 1; i < len(tmpl.Samples); i++ {
			if tmpl.Samples[i].T <= tmpl.Samples[i-1].T {
				t.Fatalf("k=%v: sample %d time %v not after %v", k, i, tmpl.Samples[i].T, tmpl.Samples[i-1].T)
			}
		}
	}
}

func TestCompute_SubthresholdDoesNotFire(t *testing.T) {
	p := DefaultParams()
	p.ActivationConstant = 0.5

	tmpl, err := Compute(p)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if tmpl.Fired {
		t.Fatal("expected subthreshold stimulus not to fire")
	}
	if len(tmpl.Samples) == 0 {
		t.Fatal("expected a trace even when the neuron does not fire")
	}
	if tmpl.CompletionTime != tmpl.Duration() {
		t.Errorf("CompletionTime = %v, want trace end %v", tmpl.CompletionTime, tmpl.Duration())
	}
	for _, s := range tmpl.Samples {
		if s.V > p.Threshold {
			t.Fatalf("non-firing trace exceeds threshold: %+v", s)
		}
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero capacitance", func(p *Params) { p.Membrane.C = 0 }},
		{"no baseline steps", func(p *Params) { p.MaxBaselineSteps = 0 }},
		{"negative pulse", func(p *Params) { p.DepolarizeDuration = -1 }},
		{"too few samples", func(p *Params) { p.RecoverySamples = 1 }},
		{"discard everything", func(p *Params) { p.DiscardFraction = 1 }},
		{"zero time scale", func(p *Params) { p.TimeScale = 0 }},
		{"rest above threshold", func(p *Params) { p.RestingPotential = -50 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if _, err := Compute(p); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Compute() error = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestTemplate_ShiftAndVoltageAt(t *testing.T) {
	tmpl, err := Compute(DefaultParams())
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	shifted := tmpl.Shift(100)
	if len(shifted) != len(tmpl.Samples) {
		t.Fatalf("Shift changed length: %d vs %d", len(shifted), len(tmpl.Samples))
	}
	for i := range shifted {
		if shifted[i].T != tmpl.Samples[i].T+100 || shifted[i].V != tmpl.Samples[i].V {
			t.Fatalf("Shift sample %d = %+v, want offset of %+v", i, shifted[i], tmpl.Samples[i])
		}
	}
	if tmpl.Samples[0].T != 0 {
		t.Error("Shift must not mutate the shared template")
	}

	if got := tmpl.VoltageAt(-5); got != tmpl.Samples[0].V {
		t.Errorf("VoltageAt before start = %v, want %v", got, tmpl.Samples[0].V)
	}
	last := tmpl.Samples[len(tmpl.Samples)-1]
	if got := tmpl.VoltageAt(last.T + 5); got != last.V {
		t.Errorf("VoltageAt after end = %v, want %v", got, last.V)
	}
	a, b := tmpl.Samples[3], tmpl.Samples[4]
	mid := tmpl.VoltageAt((a.T + b.T) / 2)
	if math.Abs(mid-(a.V+b.V)/2) > 1e-9 {
		t.Errorf("VoltageAt midpoint = %v, want %v", mid, (a.V+b.V)/2)
	}
}

func TestMembrane_StepStaysBounded(t *testing.T) {
	mb := DefaultParams().Membrane
	s := State{N: 0.3, M: 0.05, H: 0.6, V: -65}
	for i := 0; i < 10000; i++ {
		s = mb.Step(s, 1, 0.5)
		if math.IsNaN(s.V) || s.V < mb.EK-1 || s.V > mb.ENa+1e6 {
			t.Fatalf("step %d produced unbounded voltage %v", i, s.V)
		}
		for _, g := range []float64{s.N, s.M, s.H} {
			if g < 0 || g > 1 {
				t.Fatalf("step %d gating variable out of [0,1]: %+v", i, s)
			}
		}
	}
}

func TestRate_RemovableSingularity(t *testing.T) {
	if got := alphaN(-55); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("alphaN(-55) = %v, want 0.1", got)
	}
	if got := alphaM(-40); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("alphaM(-40) = %v, want 1.0", got)
	}
}

func TestProvider_ComputesOnce(t *testing.T) {
	pr := NewProvider(DefaultParams())

	var wg sync.WaitGroup
	results := make([]*Template, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tmpl, err := pr.Template()
			if err != nil {
				t.Errorf("Template() error = %v", err)
			}
			results[i] = tmpl
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("expected every caller to share the same template")
		}
	}

	times, volts, completion, err := pr.Compute()
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if len(times) != len(volts) || len(times) != len(results[0].Samples) {
		t.Errorf("Compute() returned misaligned columns: %d times, %d volts", len(times), len(volts))
	}
	if completion != results[0].CompletionTime {
		t.Errorf("Compute() completion = %v, want %v", completion, results[0].CompletionTime)
	}
}

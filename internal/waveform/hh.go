package waveform

import "math"

// State is the instantaneous state of the Hodgkin-Huxley membrane model:
// the three gating variables and the membrane voltage in mV.
type State struct {
	N float64
	M float64
	H float64
	V float64
}

// Membrane holds the conductances, reversal potentials and capacitance
// of the point-neuron model.
type Membrane struct {
	EL  float64 // leak reversal potential (mV)
	ENa float64 // sodium reversal potential (mV)
	EK  float64 // potassium reversal potential (mV)
	GL  float64 // leak conductance
	GNa float64 // sodium conductance
	GK  float64 // potassium conductance
	C   float64 // membrane capacitance
}

// rate evaluates x / (1 - exp(-x/s)), which has a removable singularity
// at x == 0 where its limit is s.
func rate(x, s float64) float64 {
	if math.Abs(x) < 1e-9 {
		return s
	}
	return x / (1 - math.Exp(-x/s))
}

func alphaN(v float64) float64 { return 0.01 * rate(v+55, 10) }
func betaN(v float64) float64  { return 0.125 * math.Exp(-(v+65)/80) }
func alphaM(v float64) float64 { return 0.1 * rate(v+40, 10) }
func betaM(v float64) float64  { return 4 * math.Exp(-(v+65)/18) }
func alphaH(v float64) float64 { return 0.07 * math.Exp(-(v+65)/20) }
func betaH(v float64) float64  { return 1 / (1 + math.Exp(-(v+35)/10)) }

// Derivatives returns dn/dt, dm/dt, dh/dt and dv/dt for the given state
// under injected current i.
func (mb Membrane) Derivatives(s State, i float64) State {
	return State{
		N: alphaN(s.V)*(1-s.N) - betaN(s.V)*s.N,
		M: alphaM(s.V)*(1-s.M) - betaM(s.V)*s.M,
		H: alphaH(s.V)*(1-s.H) - betaH(s.V)*s.H,
		V: (i + mb.GK*math.Pow(s.N, 4)*(mb.EK-s.V) +
			mb.GNa*math.Pow(s.M, 3)*s.H*(mb.ENa-s.V) +
			mb.GL*(mb.EL-s.V)) / mb.C,
	}
}

// gate advances a gating variable by dt using its exact solution with the
// rate constants frozen at the start of the step.
func gate(x, alpha, beta, dt float64) float64 {
	sum := alpha + beta
	if sum <= 0 {
		return x
	}
	inf := alpha / sum
	return inf + (x-inf)*math.Exp(-dt*sum)
}

// Step advances the state by dt milliseconds with a Rush-Larsen
// (exponential Euler) update. Each equation is linear in its own variable
// once the others are frozen, so the update stays bounded for any dt even
// though the voltage equation is extremely stiff (1/C is large).
func (mb Membrane) Step(s State, i, dt float64) State {
	v := s.V
	next := State{
		N: gate(s.N, alphaN(v), betaN(v), dt),
		M: gate(s.M, alphaM(v), betaM(v), dt),
		H: gate(s.H, alphaH(v), betaH(v), dt),
	}

	gK := mb.GK * math.Pow(next.N, 4)
	gNa := mb.GNa * math.Pow(next.M, 3) * next.H
	g := gK + gNa + mb.GL
	if g <= 0 {
		next.V = v + dt*i/mb.C
		return next
	}
	vInf := (i + gK*mb.EK + gNa*mb.ENa + mb.GL*mb.EL) / g
	next.V = vInf + (v-vInf)*math.Exp(-dt*g/mb.C)
	return next
}

// Integrate advances s over the given sample times, taking subSteps
// internal steps between consecutive samples, and returns the voltage at
// each sample along with the final state. times[0] is the starting time
// and the returned voltages[0] is s.V.
func (mb Membrane) Integrate(s State, times []float64, i float64, subSteps int) ([]float64, State) {
	if subSteps < 1 {
		subSteps = 1
	}
	volts := make([]float64, len(times))
	if len(times) == 0 {
		return volts, s
	}
	volts[0] = s.V
	for k := 1; k < len(times); k++ {
		dt := (times[k] - times[k-1]) / float64(subSteps)
		for j := 0; j < subSteps; j++ {
			s = mb.Step(s, i, dt)
		}
		volts[k] = s.V
	}
	return volts, s
}

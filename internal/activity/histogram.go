// Package activity turns firing events into a time histogram of network
// activity.
package activity

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/MontagueM/NeuronImperialProject/internal/propagation"
)

// Histogram counts firings per timestamp. Times are strictly increasing
// and Counts[i] is the number of events at Times[i].
type Histogram struct {
	Times  []float64 `json:"times"`
	Counts []int     `json:"counts"`
}

// Aggregate groups events by exact timestamp.
func Aggregate(events []propagation.FiringEvent) Histogram {
	times := make([]float64, len(events))
	for i, ev := range events {
		times[i] = ev.Time
	}
	return AggregateTimes(times)
}

// AggregateTimes groups raw timestamps. The input is not modified.
func AggregateTimes(times []float64) Histogram {
	sorted := make([]float64, len(times))
	copy(sorted, times)
	sort.Float64s(sorted)

	h := Histogram{Times: []float64{}, Counts: []int{}}
	for _, t := range sorted {
		last := len(h.Times) - 1
		if last >= 0 && h.Times[last] == t {
			h.Counts[last]++
			continue
		}
		h.Times = append(h.Times, t)
		h.Counts = append(h.Counts, 1)
	}
	return h
}

// Bin groups events into fixed-width bins keyed by their lower edge. A
// width of zero or less falls back to exact timestamps.
func Bin(events []propagation.FiringEvent, width float64) Histogram {
	if width <= 0 {
		return Aggregate(events)
	}
	times := make([]float64, len(events))
	for i, ev := range events {
		times[i] = math.Floor(ev.Time/width) * width
	}
	return AggregateTimes(times)
}

// Merge combines histograms into one.
func Merge(hs ...Histogram) Histogram {
	counts := make(map[float64]int)
	for _, h := range hs {
		for i, t := range h.Times {
			counts[t] += h.Counts[i]
		}
	}
	out := Histogram{Times: make([]float64, 0, len(counts)), Counts: make([]int, 0, len(counts))}
	for t := range counts {
		out.Times = append(out.Times, t)
	}
	sort.Float64s(out.Times)
	for _, t := range out.Times {
		out.Counts = append(out.Counts, counts[t])
	}
	return out
}

// Len returns the number of bins.
func (h Histogram) Len() int { return len(h.Times) }

// Total returns the number of events counted.
func (h Histogram) Total() int {
	total := 0
	for _, c := range h.Counts {
		total += c
	}
	return total
}

// NonZero reports whether any event was counted.
func (h Histogram) NonZero() bool { return h.Total() > 0 }

// Peak returns the time and count of the busiest bin. Ties go to the
// earliest bin. An empty histogram returns zeros.
func (h Histogram) Peak() (float64, int) {
	if len(h.Counts) == 0 {
		return 0, 0
	}
	idx := floats.MaxIdx(h.Floats())
	return h.Times[idx], h.Counts[idx]
}

// Floats returns the counts as float64 values.
func (h Histogram) Floats() []float64 {
	out := make([]float64, len(h.Counts))
	for i, c := range h.Counts {
		out[i] = float64(c)
	}
	return out
}

// Rate is the mean firing rate: events per neuron per unit of simulated
// time. It is zero when population or horizon is not positive.
func (h Histogram) Rate(population int, horizon float64) float64 {
	if population <= 0 || horizon <= 0 {
		return 0
	}
	return float64(h.Total()) / (float64(population) * horizon)
}

// Scaled returns the counts divided by div, for example 60 to express
// per-bin counts in Hz over a one-minute window. A non-positive div
// returns the raw counts.
func (h Histogram) Scaled(div float64) []float64 {
	out := h.Floats()
	if div > 0 {
		floats.Scale(1/div, out)
	}
	return out
}

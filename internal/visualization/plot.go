package visualization

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/MontagueM/NeuronImperialProject/internal/activity"
	"github.com/MontagueM/NeuronImperialProject/internal/propagation"
	"github.com/MontagueM/NeuronImperialProject/internal/waveform"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// PlotFormats lists the image formats accepted by the Plot functions,
// selected by file extension.
var PlotFormats = []string{"png", "svg", "pdf", "eps", "jpg", "jpeg", "tif", "tiff"}

// ActivityPlot builds a plot of firing counts over simulated time.
func ActivityPlot(h activity.Histogram, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (ms)"
	p.Y.Label.Text = "firings"
	p.X.Min, p.Y.Min = 0, 0

	if h.Len() == 0 {
		p.X.Max, p.Y.Max = 1, 1
		return p, nil
	}

	pts := make(plotter.XYs, h.Len())
	for i := range h.Times {
		pts[i].X = h.Times[i]
		pts[i].Y = float64(h.Counts[i])
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, fmt.Errorf("activity line: %w", err)
	}
	line.LineStyle.Color = plotutil.Color(0)
	points.GlyphStyle.Color = plotutil.Color(0)
	points.GlyphStyle.Shape = draw.CircleGlyph{}
	points.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(line, points)
	return p, nil
}

// PlotActivity writes the activity histogram as an image. The format is
// taken from the file extension.
func PlotActivity(h activity.Histogram, path string) error {
	if err := checkFormat(path); err != nil {
		return err
	}
	p, err := ActivityPlot(h, "cascade activity")
	if err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("saving activity plot: %w", err)
	}
	return nil
}

// WriteActivity renders the activity histogram to w in the given format.
func WriteActivity(w io.Writer, h activity.Histogram, format string) error {
	p, err := ActivityPlot(h, "cascade activity")
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, format)
	if err != nil {
		return fmt.Errorf("rendering activity plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// TracesPlot builds a plot of membrane voltage for neurons 0..n-1. Every
// firing replays the template, starting at the stimulus arrival.
func TracesPlot(tmpl *waveform.Template, events []propagation.FiringEvent, n int) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "membrane voltage"
	p.X.Label.Text = "time (ms)"
	p.Y.Label.Text = "voltage (mV)"
	p.Legend.Top = true

	firings := make(map[int][]float64)
	for _, ev := range events {
		if ev.Neuron >= 0 && ev.Neuron < n {
			firings[ev.Neuron] = append(firings[ev.Neuron], ev.Time)
		}
	}

	drawn := 0
	for id := 0; id < n; id++ {
		times := firings[id]
		if len(times) == 0 {
			continue
		}
		sort.Float64s(times)
		color := plotutil.Color(drawn)
		for i, t := range times {
			samples := tmpl.Shift(t - tmpl.CompletionTime)
			pts := make(plotter.XYs, len(samples))
			for j, s := range samples {
				pts[j].X, pts[j].Y = s.T, s.V
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, fmt.Errorf("trace of neuron %d: %w", id, err)
			}
			line.LineStyle.Color = color
			p.Add(line)
			if i == 0 {
				p.Legend.Add(fmt.Sprintf("neuron %d", id), line)
			}
		}
		drawn++
	}

	if drawn == 0 {
		p.X.Min, p.X.Max = 0, 1
		p.Y.Min, p.Y.Max = -80, 40
	}
	return p, nil
}

// PlotTraces writes the voltage traces of the first n neurons as an image.
func PlotTraces(tmpl *waveform.Template, events []propagation.FiringEvent, n int, path string) error {
	if err := checkFormat(path); err != nil {
		return err
	}
	p, err := TracesPlot(tmpl, events, n)
	if err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("saving trace plot: %w", err)
	}
	return nil
}

// checkFormat rejects paths whose extension gonum/plot cannot encode.
func checkFormat(path string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, f := range PlotFormats {
		if ext == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported plot format %q (valid: %s)", ext, strings.Join(PlotFormats, ", "))
}

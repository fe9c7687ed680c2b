package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MontagueM/NeuronImperialProject/internal/activity"
	"github.com/MontagueM/NeuronImperialProject/internal/config"
	"github.com/MontagueM/NeuronImperialProject/internal/logging"
	"github.com/MontagueM/NeuronImperialProject/internal/network"
	"github.com/MontagueM/NeuronImperialProject/internal/propagation"
	"github.com/MontagueM/NeuronImperialProject/internal/store"
	"github.com/MontagueM/NeuronImperialProject/internal/waveform"
)

// graphStream is the PCG stream used for population, wiring and seed
// choice. Cascade i uses stream i+1.
const graphStream = 0

// Sink receives every completed run. store.SQLiteRunStore,
// store.InMemoryRunStore and store.ActivityLog all satisfy it.
type Sink interface {
	SaveRun(ctx context.Context, run store.RunRecord) error
}

// TemplateSummary describes the waveform the run replayed.
type TemplateSummary struct {
	CompletionTime float64 `json:"completion_time"`
	Fired          bool    `json:"fired"`
	PeakMV         float64 `json:"peak_mv"`
	Samples        int     `json:"samples"`
}

// Report is the outcome of one run: the histogram plus the parameters
// that produced it.
type Report struct {
	RunID     uuid.UUID `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`

	Horizon               float64          `json:"horizon_ms"`
	Refractory            float64          `json:"refractory_ms"`
	ExcitatoryProbability float64          `json:"excitatory_prob"`
	InhibitoryProbability float64          `json:"inhibitory_prob"`
	Mode                  propagation.Mode `json:"mode"`
	Population            int              `json:"population"`
	EdgeCount             int              `json:"edge_count"`
	RNGSeed               uint64           `json:"rng_seed"`
	Seeds                 []int            `json:"seeds"`

	Histogram activity.Histogram        `json:"histogram"`
	Events    []propagation.FiringEvent `json:"events,omitempty"`
	Rate      float64                   `json:"rate"`
	Truncated bool                      `json:"truncated"`
	Stats     propagation.Stats         `json:"stats"`

	GraphStats []network.LayerStats `json:"graph_stats"`
	Template   TemplateSummary      `json:"template"`
	Duration   time.Duration        `json:"duration"`

	configYAML string
}

// Record converts the report to its persisted form.
func (r *Report) Record() store.RunRecord {
	return store.RunRecord{
		ID:             r.RunID.String(),
		CreatedAt:      r.CreatedAt,
		HorizonMS:      r.Horizon,
		RefractoryMS:   r.Refractory,
		ExcitatoryProb: r.ExcitatoryProbability,
		InhibitoryProb: r.InhibitoryProbability,
		Mode:           string(r.Mode),
		Population:     r.Population,
		EdgeCount:      r.EdgeCount,
		RNGSeed:        r.RNGSeed,
		Seeds:          append([]int{}, r.Seeds...),
		EventCount:     len(r.Events),
		Truncated:      r.Truncated,
		Duration:       r.Duration,
		Histogram:      r.Histogram,
		Config:         r.configYAML,
	}
}

// Runner orchestrates a simulation: template, graph, seed, cascades,
// histogram, persistence.
type Runner struct {
	cfg       *config.SimConfig
	provider  *waveform.Provider
	sinks     []Sink
	logger    *slog.Logger
	decisions *logging.DecisionLogger
}

// NewRunner validates cfg and creates a runner. The waveform template is
// computed once per runner, on first use.
func NewRunner(cfg *config.SimConfig) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Runner{
		cfg:      cfg,
		provider: waveform.NewProvider(cfg.WaveformParams()),
		logger:   logging.Discard(),
	}, nil
}

// SetLogger sets the structured logger and decision logger for observability.
func (r *Runner) SetLogger(logger *slog.Logger, decisions *logging.DecisionLogger) {
	if logger == nil {
		logger = logging.Discard()
	}
	r.logger = logger
	r.decisions = decisions
}

// AddSink registers a destination for completed runs.
func (r *Runner) AddSink(s Sink) {
	r.sinks = append(r.sinks, s)
}

// Config returns the runner configuration.
func (r *Runner) Config() *config.SimConfig { return r.cfg }

// Template returns the shared waveform template.
func (r *Runner) Template() (*waveform.Template, error) {
	tmpl, err := r.provider.Template()
	if err != nil {
		return nil, fmt.Errorf("computing waveform template: %w", err)
	}
	return tmpl, nil
}

// BuildGraph generates the network for the configured RNG seed and
// returns it with the seed used. A zero configured seed draws a fresh one.
func (r *Runner) BuildGraph() (*network.Graph, uint64, error) {
	seed := r.rngSeed()
	g, _, err := r.buildGraph(seed)
	return g, seed, err
}

func (r *Runner) rngSeed() uint64 {
	if r.cfg.Seed.RNGSeed != 0 {
		return r.cfg.Seed.RNGSeed
	}
	return rand.Uint64()
}

func (r *Runner) buildGraph(seed uint64) (*network.Graph, *rand.Rand, error) {
	rng := rand.New(rand.NewPCG(seed, graphStream))
	g, err := network.Generate(r.cfg.NetworkSpec(), rng)
	if err != nil {
		return nil, nil, fmt.Errorf("generating network: %w", err)
	}
	return g, rng, nil
}

// chooseSeed applies the seed policy.
func (r *Runner) chooseSeed(g *network.Graph, rng *rand.Rand) (int, error) {
	switch r.cfg.Seed.Policy {
	case config.SeedRandom:
		return rng.IntN(g.Len()), nil
	default:
		if !g.Has(r.cfg.Seed.Index) {
			return 0, fmt.Errorf("%w: seed index %d (graph has %d neurons)", propagation.ErrUnknownNeuron, r.cfg.Seed.Index, g.Len())
		}
		return r.cfg.Seed.Index, nil
	}
}

// Run builds the network, picks a seed by policy and drives one cascade.
// Hitting a safety cap is reported through Report.Truncated. Cancellation
// returns the partial report together with the context error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	return r.run(ctx, nil)
}

// RunSeeds drives one independent cascade per seed over a single graph
// and merges their histograms. Cascades run in parallel, at most
// Output.Workers at a time; each owns its state and random stream, so
// the result does not depend on scheduling.
func (r *Runner) RunSeeds(ctx context.Context, seeds []int) (*Report, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no seeds given")
	}
	return r.run(ctx, seeds)
}

func (r *Runner) run(ctx context.Context, seeds []int) (*Report, error) {
	start := time.Now()
	runID := uuid.New()
	log := r.logger.With("run_id", runID.String())

	tmpl, err := r.Template()
	if err != nil {
		return nil, err
	}
	if !tmpl.Fired {
		log.Warn("waveform template does not fire; no events will be recorded",
			"activation_constant", r.cfg.WaveformParams().ActivationConstant)
		r.decisions.Run(runID.String(), "template_not_fired", map[string]any{
			"completion_time": tmpl.CompletionTime,
		})
	}

	rngSeed := r.rngSeed()
	g, graphRNG, err := r.buildGraph(rngSeed)
	if err != nil {
		return nil, err
	}
	log.Debug("network generated", "neurons", g.Len(), "edges", g.EdgeCount(), "rng_seed", rngSeed)

	if seeds == nil {
		seed, err := r.chooseSeed(g, graphRNG)
		if err != nil {
			return nil, err
		}
		seeds = []int{seed}
		r.decisions.Run(runID.String(), "seed_chosen", map[string]any{
			"policy": r.cfg.Seed.Policy,
			"seed":   seed,
			"layer":  layerOf(g, seed),
		})
	} else {
		for _, s := range seeds {
			if !g.Has(s) {
				return nil, fmt.Errorf("%w: seed %d (graph has %d neurons)", propagation.ErrUnknownNeuron, s, g.Len())
			}
		}
	}

	results, runErr := r.cascades(ctx, g, tmpl, seeds, rngSeed)

	pcfg := r.cfg.PropagationConfig()
	report := &Report{
		RunID:                 runID,
		CreatedAt:             start,
		Horizon:               pcfg.Horizon,
		Refractory:            pcfg.Refractory,
		ExcitatoryProbability: pcfg.ExcitatoryProbability,
		InhibitoryProbability: pcfg.InhibitoryProbability,
		Mode:                  pcfg.Mode,
		Population:            g.Len(),
		EdgeCount:             g.EdgeCount(),
		RNGSeed:               rngSeed,
		Seeds:                 seeds,
		GraphStats:            g.Stats(),
		Template: TemplateSummary{
			CompletionTime: tmpl.CompletionTime,
			Fired:          tmpl.Fired,
			PeakMV:         tmpl.Peak(),
			Samples:        len(tmpl.Samples),
		},
	}
	r.merge(report, results, log)
	report.Duration = time.Since(start)

	if runErr != nil {
		log.Info("run interrupted", "error", runErr, "events", len(report.Events))
		return report, runErr
	}

	data, err := r.cfg.Marshal()
	if err != nil {
		return report, fmt.Errorf("encoding run config: %w", err)
	}
	report.configYAML = string(data)
	for _, s := range r.sinks {
		if err := s.SaveRun(ctx, report.Record()); err != nil {
			return report, fmt.Errorf("saving run: %w", err)
		}
	}

	log.Info("run complete",
		"seeds", len(seeds),
		"events", len(report.Events),
		"bins", report.Histogram.Len(),
		"truncated", report.Truncated,
		"duration", report.Duration)
	r.decisions.Run(runID.String(), "run_complete", map[string]any{
		"events":    len(report.Events),
		"truncated": report.Truncated,
		"rate":      report.Rate,
	})

	return report, nil
}

// cascades runs one engine per seed on a bounded errgroup. Results are
// indexed like seeds; a cancelled cascade leaves its partial result.
func (r *Runner) cascades(ctx context.Context, g *network.Graph, tmpl *waveform.Template, seeds []int, rngSeed uint64) ([]*propagation.Result, error) {
	pcfg := r.cfg.PropagationConfig()
	results := make([]*propagation.Result, len(seeds))

	workers := r.cfg.Output.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, seed := range seeds {
		eg.Go(func() error {
			engine := propagation.NewEngine(g, tmpl, pcfg, rand.New(rand.NewPCG(rngSeed, uint64(i)+1)))
			res, err := engine.Run(egCtx, seed)
			results[i] = res
			return err
		})
	}
	err := eg.Wait()
	if err == nil {
		// errgroup cancels egCtx only on failure; a parent cancel that
		// arrives after the last cascade finished is still reported.
		err = ctx.Err()
	}
	return results, err
}

// merge folds per-seed results into the report in seed order.
func (r *Runner) merge(report *Report, results []*propagation.Result, log *slog.Logger) {
	width := r.cfg.Output.BinWidth
	hists := make([]activity.Histogram, 0, len(results))
	report.Events = []propagation.FiringEvent{}

	for _, res := range results {
		if res == nil {
			continue
		}
		report.Events = append(report.Events, res.Events...)
		hists = append(hists, activity.Bin(res.Events, width))
		addStats(&report.Stats, res.Stats)

		if res.Truncated {
			report.Truncated = true
			log.Warn("cascade truncated", "seed", res.Seed, "limit", res.Limit, "events", len(res.Events))
			r.decisions.Run(report.RunID.String(), "cascade_truncated", map[string]any{
				"seed":   res.Seed,
				"limit":  errorString(res.Limit),
				"events": len(res.Events),
			})
		}
		log.Log(context.Background(), logging.LevelTrace, "cascade finished",
			"seed", res.Seed,
			"events", len(res.Events),
			"gate_failures", res.Stats.GateFailures,
			"refractory_rejections", res.Stats.RefractoryRejections,
			"horizon_rejections", res.Stats.HorizonRejections,
			"max_depth", res.Stats.MaxDepth)
	}

	report.Histogram = activity.Merge(hists...)
	report.Rate = report.Histogram.Rate(report.Population*len(report.Seeds), report.Horizon)
}

func addStats(dst *propagation.Stats, src propagation.Stats) {
	dst.Stimulations += src.Stimulations
	dst.Fired += src.Fired
	dst.GateFailures += src.GateFailures
	dst.RefractoryRejections += src.RefractoryRejections
	dst.HorizonRejections += src.HorizonRejections
	dst.SubthresholdRejects += src.SubthresholdRejects
	if src.MaxDepth > dst.MaxDepth {
		dst.MaxDepth = src.MaxDepth
	}
}

func layerOf(g *network.Graph, id int) string {
	n, ok := g.Neuron(id)
	if !ok {
		return ""
	}
	return n.Layer
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

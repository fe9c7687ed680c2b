package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MontagueM/NeuronImperialProject/internal/config"
	"github.com/MontagueM/NeuronImperialProject/internal/ratelimit"
	"github.com/MontagueM/NeuronImperialProject/internal/simulation"
	"github.com/MontagueM/NeuronImperialProject/internal/store"
	"github.com/MontagueM/NeuronImperialProject/internal/waveform"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200

	latestRunURI = "neuronsim://runs/latest"
)

// registerTools registers all neuronsim MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "neuronsim_simulate",
		Description: "Generate a neuron network, run firing cascades from seed neurons and return the activity histogram",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "neuronsim_waveform",
		Description: "Compute the action potential template every neuron replays, and its completion time",
	}, s.handleWaveform)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "neuronsim_history",
		Description: "List stored simulation runs, or show one run with its histogram",
	}, s.handleHistory)

	return nil
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         latestRunURI,
		Name:        "neuronsim-latest-run",
		Description: "Summary of the most recent simulation run.",
		MIMEType:    "text/markdown",
	}, s.handleLatestRunResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: "neuronsim://runs/{id}",
		Name:        "neuronsim-run",
		Description: "Summary and histogram of a stored simulation run.",
		MIMEType:    "text/markdown",
	}, s.handleRunResource)

	return nil
}

// handleSimulate implements the neuronsim_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("neuronsim_simulate", start, retErr, sanitizeToolParams(simulateParams(args)))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "neuronsim_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	cfg, err := s.simConfig(args)
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	runner, err := simulation.NewRunner(cfg)
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	runner.SetLogger(s.logger, s.decisions)
	runner.AddSink(s.store)
	if cfg.Output.ActivityLog != "" {
		runner.AddSink(store.NewActivityLog(store.ResolveInDir(store.LocalPath(s.root), cfg.Output.ActivityLog)))
	}

	s.simMu.Lock()
	defer s.simMu.Unlock()

	var report *simulation.Report
	if len(args.Seeds) > 0 {
		report, err = runner.RunSeeds(ctx, args.Seeds)
	} else {
		report, err = runner.Run(ctx)
	}
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("simulation failed: %w", err)
	}

	peakTime, peakCount := report.Histogram.Peak()
	out := SimulateOutput{
		RunID:      report.RunID.String(),
		Population: report.Population,
		EdgeCount:  report.EdgeCount,
		RNGSeed:    report.RNGSeed,
		Seeds:      report.Seeds,
		EventCount: len(report.Events),
		Truncated:  report.Truncated,
		Rate:       report.Rate,
		PeakTime:   peakTime,
		PeakCount:  peakCount,
		Histogram:  report.Histogram,
		Stats:      report.Stats,
		Layers:     report.GraphStats,
		DurationMS: report.Duration.Milliseconds(),
	}
	if args.IncludeEvents {
		out.Events = report.Events
	}

	msg := fmt.Sprintf("%d firings across %d neurons (%d edges) in %d bins",
		out.EventCount, out.Population, out.EdgeCount, report.Histogram.Len())
	if report.Truncated {
		msg += "; stopped early by a safety cap"
	}
	if !report.Template.Fired {
		msg += "; the waveform template does not fire, so only stimulations were counted"
	}
	out.Message = msg

	return nil, out, nil
}

// simConfig applies tool arguments on top of the server's configuration.
func (s *Server) simConfig(args SimulateInput) (*config.SimConfig, error) {
	cfg := s.sim.Clone()
	if args.Preset != "" {
		preset, err := config.Preset(args.Preset)
		if err != nil {
			return nil, err
		}
		cfg.Network = preset.Network
	}
	if args.HorizonMS != nil {
		cfg.Propagation.HorizonMS = *args.HorizonMS
	}
	if args.RefractoryMS != nil {
		cfg.Propagation.RefractoryMS = *args.RefractoryMS
	}
	if args.ExcitatoryProb != nil {
		cfg.Propagation.ExcitatoryProb = *args.ExcitatoryProb
	}
	if args.InhibitoryProb != nil {
		cfg.Propagation.InhibitoryProb = *args.InhibitoryProb
	}
	if args.Mode != "" {
		cfg.Propagation.Mode = args.Mode
	}
	if args.RNGSeed != 0 {
		cfg.Seed.RNGSeed = args.RNGSeed
	}
	if args.BinWidth != nil {
		cfg.Output.BinWidth = *args.BinWidth
	}
	return cfg, nil
}

// simulateParams lists the arguments that were actually set.
func simulateParams(args SimulateInput) map[string]interface{} {
	params := map[string]interface{}{}
	if args.Preset != "" {
		params["preset"] = args.Preset
	}
	if args.HorizonMS != nil {
		params["horizon_ms"] = *args.HorizonMS
	}
	if args.RefractoryMS != nil {
		params["refractory_ms"] = *args.RefractoryMS
	}
	if args.ExcitatoryProb != nil {
		params["excitatory_prob"] = *args.ExcitatoryProb
	}
	if args.InhibitoryProb != nil {
		params["inhibitory_prob"] = *args.InhibitoryProb
	}
	if args.Mode != "" {
		params["mode"] = args.Mode
	}
	if args.RNGSeed != 0 {
		params["rng_seed"] = args.RNGSeed
	}
	if len(args.Seeds) > 0 {
		params["seeds"] = len(args.Seeds)
	}
	if args.BinWidth != nil {
		params["bin_width"] = *args.BinWidth
	}
	return params
}

// handleWaveform implements the neuronsim_waveform tool.
func (s *Server) handleWaveform(ctx context.Context, req *sdk.CallToolRequest, args WaveformInput) (_ *sdk.CallToolResult, _ WaveformOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("neuronsim_waveform", start, retErr, sanitizeToolParams(map[string]interface{}{}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "neuronsim_waveform"); err != nil {
		return nil, WaveformOutput{}, err
	}

	params := s.sim.WaveformParams()
	if args.ActivationConstant != 0 {
		params.ActivationConstant = args.ActivationConstant
	}
	if args.TimeScale != 0 {
		params.TimeScale = args.TimeScale
	}
	if err := params.Validate(); err != nil {
		return nil, WaveformOutput{}, err
	}

	tmpl, err := waveform.Compute(params)
	if err != nil {
		return nil, WaveformOutput{}, fmt.Errorf("computing waveform: %w", err)
	}

	out := WaveformOutput{
		CompletionTime: tmpl.CompletionTime,
		Fired:          tmpl.Fired,
		PeakMV:         tmpl.Peak(),
		DurationMS:     tmpl.Duration(),
		SampleCount:    len(tmpl.Samples),
	}
	if args.IncludeSamples {
		out.Samples = tmpl.Samples
	}
	return nil, out, nil
}

// handleHistory implements the neuronsim_history tool.
func (s *Server) handleHistory(ctx context.Context, req *sdk.CallToolRequest, args HistoryInput) (_ *sdk.CallToolResult, _ HistoryOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := map[string]interface{}{"limit": args.Limit}
		if args.ID != "" {
			params["id"] = args.ID
		}
		s.auditTool("neuronsim_history", start, retErr, sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "neuronsim_history"); err != nil {
		return nil, HistoryOutput{}, err
	}

	if args.ID != "" {
		run, err := s.store.GetRun(ctx, args.ID)
		if err != nil {
			return nil, HistoryOutput{}, err
		}
		detail := runDetail(*run)
		return nil, HistoryOutput{Run: &detail, Count: 1}, nil
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}
	out := HistoryOutput{Runs: make([]RunSummary, 0, len(runs))}
	for _, r := range runs {
		out.Runs = append(out.Runs, runSummary(r))
	}
	out.Count = len(out.Runs)
	return nil, out, nil
}

func runSummary(r store.RunRecord) RunSummary {
	seeds := r.Seeds
	if seeds == nil {
		seeds = []int{}
	}
	return RunSummary{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		HorizonMS:      r.HorizonMS,
		ExcitatoryProb: r.ExcitatoryProb,
		Population:     r.Population,
		RNGSeed:        r.RNGSeed,
		Seeds:          seeds,
		EventCount:     r.EventCount,
		Truncated:      r.Truncated,
	}
}

func runDetail(r store.RunRecord) RunDetail {
	return RunDetail{
		RunSummary:     runSummary(r),
		RefractoryMS:   r.RefractoryMS,
		InhibitoryProb: r.InhibitoryProb,
		Mode:           r.Mode,
		EdgeCount:      r.EdgeCount,
		DurationMS:     r.Duration.Milliseconds(),
		Histogram:      r.Histogram,
		Config:         r.Config,
	}
}

// handleLatestRunResource returns the most recent run formatted for context injection.
func (s *Server) handleLatestRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	runs, err := s.store.ListRuns(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	text := "# Latest run\n\nNo simulations have been run yet. Use `neuronsim_simulate` to start one.\n"
	if len(runs) > 0 {
		run, err := s.store.GetRun(ctx, runs[0].ID)
		if err != nil {
			return nil, err
		}
		text = formatRun("Latest run", *run)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      latestRunURI,
				MIMEType: "text/markdown",
				Text:     text,
			},
		},
	}, nil
}

// handleRunResource returns one stored run by id.
func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, "neuronsim://runs/")
	if id == "" || id == uri {
		return nil, fmt.Errorf("invalid run URI: %s", uri)
	}

	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     formatRun("Run "+run.ID, *run),
			},
		},
	}, nil
}

// formatRun renders a run as markdown.
func formatRun(title string, run store.RunRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "- **ID:** %s\n", run.ID)
	fmt.Fprintf(&sb, "- **Created:** %s\n", run.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- **Network:** %d neurons, %d edges\n", run.Population, run.EdgeCount)
	fmt.Fprintf(&sb, "- **Horizon:** %g ms, refractory %g ms, mode %s\n", run.HorizonMS, run.RefractoryMS, run.Mode)
	fmt.Fprintf(&sb, "- **Transmission:** excitatory %g, inhibitory %g\n", run.ExcitatoryProb, run.InhibitoryProb)
	fmt.Fprintf(&sb, "- **RNG seed:** %d, seeds %v\n", run.RNGSeed, run.Seeds)
	fmt.Fprintf(&sb, "- **Firings:** %d", run.EventCount)
	if run.Truncated {
		sb.WriteString(" (truncated)")
	}
	sb.WriteString("\n")

	if run.Histogram.Len() > 0 {
		t, c := run.Histogram.Peak()
		fmt.Fprintf(&sb, "- **Peak:** %d firings at %g ms over %d bins\n", c, t, run.Histogram.Len())
	}
	return sb.String()
}

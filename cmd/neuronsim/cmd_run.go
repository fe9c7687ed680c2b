package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MontagueM/NeuronImperialProject/internal/config"
	"github.com/MontagueM/NeuronImperialProject/internal/simulation"
	"github.com/MontagueM/NeuronImperialProject/internal/store"
	"github.com/MontagueM/NeuronImperialProject/internal/visualization"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a network and run a firing cascade",
		Long: `Generate a network from the configuration, stimulate the seed neuron
and record every firing up to the horizon.

The run is stored in .neuronsim/runs.db and its histogram appended to the
activity log. Without --seeds the configured seed policy picks one neuron;
with --seeds every listed neuron starts its own independent cascade and
the histograms are merged.

Examples:
  neuronsim run
  neuronsim run --preset flat --excitatory-prob 0.3
  neuronsim run --seeds 0,10,20 --bin-width 1 --plot activity.png
  neuronsim run --traces traces.svg --traces-n 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			seeds, _ := cmd.Flags().GetIntSlice("seeds")
			plotPath, _ := cmd.Flags().GetString("plot")
			tracesPath, _ := cmd.Flags().GetString("traces")
			tracesN, _ := cmd.Flags().GetInt("traces-n")
			noSave, _ := cmd.Flags().GetBool("no-save")
			showEvents, _ := cmd.Flags().GetBool("events")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}

			runner, err := simulation.NewRunner(cfg)
			if err != nil {
				return err
			}
			logger, decisions := newLoggers(cmd, cfg)
			defer decisions.Close()
			runner.SetLogger(logger, decisions)

			if !noSave {
				runStore, err := store.NewSQLiteRunStore(root)
				if err != nil {
					return fmt.Errorf("failed to open run store: %w", err)
				}
				defer runStore.Close()
				runner.AddSink(runStore)
				if cfg.Output.ActivityLog != "" {
					runner.AddSink(store.NewActivityLog(store.ResolveInDir(store.LocalPath(root), cfg.Output.ActivityLog)))
				}
			}

			ctx, cancel := signalContext(context.Background())
			defer cancel()

			var report *simulation.Report
			if len(seeds) > 0 {
				report, err = runner.RunSeeds(ctx, seeds)
			} else {
				report, err = runner.Run(ctx)
			}
			if err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}

			if plotPath != "" {
				if err := visualization.PlotActivity(report.Histogram, plotPath); err != nil {
					return err
				}
			}
			if tracesPath != "" {
				tmpl, err := runner.Template()
				if err != nil {
					return err
				}
				if err := visualization.PlotTraces(tmpl, report.Events, tracesN, tracesPath); err != nil {
					return err
				}
			}

			if !showEvents {
				report.Events = nil
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd, report, cfg.Output.HzDivisor)
			if plotPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Activity plot written to %s\n", plotPath)
			}
			if tracesPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Voltage traces written to %s\n", tracesPath)
			}
			return nil
		},
	}

	cmd.Flags().String("preset", "", "Built-in network to start from: cortical or flat")
	cmd.Flags().IntSlice("seeds", nil, "Neurons to stimulate, one cascade each (default: seed policy)")
	cmd.Flags().Float64("horizon", 0, "Simulated time limit in ms")
	cmd.Flags().Float64("refractory", 0, "Refractory window in ms")
	cmd.Flags().Float64("excitatory-prob", 0, "Transmission probability of excitatory edges")
	cmd.Flags().Float64("inhibitory-prob", 0, "Transmission probability of inhibitory edges")
	cmd.Flags().String("mode", "", "Transmission mode: gated or eager")
	cmd.Flags().Uint64("rng-seed", 0, "Random seed (0 draws a fresh one)")
	cmd.Flags().Float64("bin-width", 0, "Histogram bin width in ms (0 keeps exact firing times)")
	cmd.Flags().String("plot", "", "Write the activity histogram to this image (png, svg, pdf, ...)")
	cmd.Flags().String("traces", "", "Write voltage traces of the first neurons to this image")
	cmd.Flags().Int("traces-n", 10, "Number of neurons drawn by --traces")
	cmd.Flags().Bool("events", false, "Include every firing event in JSON output")
	cmd.Flags().Bool("no-save", false, "Do not record the run")

	return cmd
}

// applyRunFlags layers the run command's flags over the loaded config.
// Only flags set on the command line take effect.
func applyRunFlags(cmd *cobra.Command, cfg *config.SimConfig) error {
	flags := cmd.Flags()
	if flags.Changed("preset") {
		name, _ := flags.GetString("preset")
		preset, err := config.Preset(name)
		if err != nil {
			return err
		}
		cfg.Network = preset.Network
	}
	if flags.Changed("horizon") {
		cfg.Propagation.HorizonMS, _ = flags.GetFloat64("horizon")
	}
	if flags.Changed("refractory") {
		cfg.Propagation.RefractoryMS, _ = flags.GetFloat64("refractory")
	}
	if flags.Changed("excitatory-prob") {
		cfg.Propagation.ExcitatoryProb, _ = flags.GetFloat64("excitatory-prob")
	}
	if flags.Changed("inhibitory-prob") {
		cfg.Propagation.InhibitoryProb, _ = flags.GetFloat64("inhibitory-prob")
	}
	if flags.Changed("mode") {
		cfg.Propagation.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("rng-seed") {
		cfg.Seed.RNGSeed, _ = flags.GetUint64("rng-seed")
	}
	if flags.Changed("bin-width") {
		cfg.Output.BinWidth, _ = flags.GetFloat64("bin-width")
	}
	return cfg.Validate()
}

func printReport(cmd *cobra.Command, r *simulation.Report, hzDivisor float64) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s\n", r.RunID)
	fmt.Fprintf(out, "  Network:   %d neurons, %d edges (rng seed %d)\n", r.Population, r.EdgeCount, r.RNGSeed)
	fmt.Fprintf(out, "  Seeds:     %s\n", joinInts(r.Seeds))
	fmt.Fprintf(out, "  Horizon:   %g ms, refractory %g ms, %s\n", r.Horizon, r.Refractory, r.Mode)
	fmt.Fprintf(out, "  Firings:   %d in %d bins, rate %.6g per neuron per ms\n", r.Histogram.Total(), r.Histogram.Len(), r.Rate)
	if r.Histogram.Len() > 0 {
		t, c := r.Histogram.Peak()
		fmt.Fprintf(out, "  Peak:      %d at %g ms", c, t)
		if hzDivisor > 0 {
			fmt.Fprintf(out, " (%.4g Hz)", float64(c)/hzDivisor)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "  Rejected:  %d refractory, %d gated, %d past horizon\n",
		r.Stats.RefractoryRejections, r.Stats.GateFailures, r.Stats.HorizonRejections)
	if r.Truncated {
		fmt.Fprintln(out, "  Truncated: a safety cap stopped at least one cascade early")
	}
	if !r.Template.Fired {
		fmt.Fprintln(out, "  Warning:   the waveform template does not fire; only stimulations were counted")
	}
	fmt.Fprintf(out, "  Duration:  %v\n", r.Duration)
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}

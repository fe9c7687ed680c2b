package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MontagueM/NeuronImperialProject/internal/propagation"
	"github.com/MontagueM/NeuronImperialProject/internal/visualization"
	"github.com/MontagueM/NeuronImperialProject/internal/waveform"
)

func newWaveformCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waveform",
		Short: "Compute the action potential template",
		Long: `Integrate the Hodgkin-Huxley membrane under a brief stimulus and report
the template every neuron replays during a cascade.

The completion time is the delay between a stimulus arriving and the
neuron firing into its targets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			samples, _ := cmd.Flags().GetBool("samples")
			plotPath, _ := cmd.Flags().GetString("plot")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			params := cfg.WaveformParams()
			if cmd.Flags().Changed("activation-constant") {
				params.ActivationConstant, _ = cmd.Flags().GetFloat64("activation-constant")
			}
			if cmd.Flags().Changed("time-scale") {
				params.TimeScale, _ = cmd.Flags().GetFloat64("time-scale")
			}

			tmpl, err := waveform.Compute(params)
			if err != nil {
				return err
			}

			if plotPath != "" {
				// One firing at the completion time draws the template from t=0.
				events := []propagation.FiringEvent{{Neuron: 0, Time: tmpl.CompletionTime}}
				if err := visualization.PlotTraces(tmpl, events, 1, plotPath); err != nil {
					return err
				}
			}

			if jsonOut {
				result := map[string]interface{}{
					"completion_time":  tmpl.CompletionTime,
					"completion_index": tmpl.CompletionIndex,
					"fired":            tmpl.Fired,
					"peak_mv":          tmpl.Peak(),
					"duration_ms":      tmpl.Duration(),
					"sample_count":     len(tmpl.Samples),
				}
				if samples {
					result["samples"] = tmpl.Samples
				}
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Completion time: %g ms\n", tmpl.CompletionTime)
			fmt.Fprintf(out, "Fired:           %v\n", tmpl.Fired)
			fmt.Fprintf(out, "Peak:            %.2f mV\n", tmpl.Peak())
			fmt.Fprintf(out, "Trace:           %d samples over %g ms\n", len(tmpl.Samples), tmpl.Duration())
			if samples {
				fmt.Fprintln(out)
				for _, s := range tmpl.Samples {
					fmt.Fprintf(out, "%g\t%.4f\n", s.T, s.V)
				}
			}
			if plotPath != "" {
				fmt.Fprintf(out, "Waveform plot written to %s\n", plotPath)
			}
			return nil
		},
	}

	cmd.Flags().Float64("activation-constant", 0, "Stimulus current constant")
	cmd.Flags().Float64("time-scale", 0, "Multiplier from integration time to ms")
	cmd.Flags().Bool("samples", false, "Print the full voltage trace")
	cmd.Flags().String("plot", "", "Write the voltage trace to this image")

	return cmd
}

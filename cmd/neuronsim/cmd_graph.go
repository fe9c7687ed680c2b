package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MontagueM/NeuronImperialProject/internal/config"
	"github.com/MontagueM/NeuronImperialProject/internal/network"
	"github.com/MontagueM/NeuronImperialProject/internal/simulation"
	"github.com/MontagueM/NeuronImperialProject/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Visualize the generated network",
		Long: `Generate the network for the configured seed and output it in DOT
(Graphviz) or JSON format, or serve it with an interactive cascade view.

Examples:
  neuronsim graph --preset flat | dot -Tsvg > network.svg
  neuronsim graph --format json --rng-seed 7
  neuronsim graph --serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			jsonOut, _ := cmd.Flags().GetBool("json")
			serve, _ := cmd.Flags().GetBool("serve")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			addr, _ := cmd.Flags().GetString("addr")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("preset") {
				name, _ := cmd.Flags().GetString("preset")
				preset, err := config.Preset(name)
				if err != nil {
					return err
				}
				cfg.Network = preset.Network
			}
			if cmd.Flags().Changed("rng-seed") {
				cfg.Seed.RNGSeed, _ = cmd.Flags().GetUint64("rng-seed")
			}

			runner, err := simulation.NewRunner(cfg)
			if err != nil {
				return err
			}
			g, rngSeed, err := runner.BuildGraph()
			if err != nil {
				return err
			}

			if serve {
				return runGraphServer(cmd, runner, g, rngSeed, addr, noOpen)
			}

			if jsonOut && !cmd.Flags().Changed("format") {
				format = string(visualization.FormatJSON)
			}
			switch visualization.Format(format) {
			case visualization.FormatDOT:
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(g))
			case visualization.FormatJSON:
				result := visualization.RenderJSON(g)
				result["rng_seed"] = rngSeed
				return writeJSON(cmd.OutOrStdout(), result)
			default:
				return fmt.Errorf("unsupported format %q (use 'dot' or 'json')", format)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().String("preset", "", "Built-in network: cortical or flat")
	cmd.Flags().Uint64("rng-seed", 0, "Random seed (0 draws a fresh one)")
	cmd.Flags().Bool("serve", false, "Start a local server that runs cascades on the network")
	cmd.Flags().String("addr", "localhost:0", "Listen address for --serve")
	cmd.Flags().Bool("no-open", false, "Don't open a browser when serving")

	return cmd
}

// runGraphServer starts a local HTTP server and blocks until Ctrl-C.
func runGraphServer(cmd *cobra.Command, runner *simulation.Runner, g *network.Graph, rngSeed uint64, addr string, noOpen bool) error {
	tmpl, err := runner.Template()
	if err != nil {
		return err
	}
	srv := visualization.NewServer(g, tmpl, runner.Config().PropagationConfig(), rngSeed)

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx, addr) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && srv.Addr() == "" {
		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	bound := srv.Addr()
	if bound == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + bound
	fmt.Fprintf(cmd.OutOrStdout(), "Graph server running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if !noOpen {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	// Block until server exits
	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MontagueM/NeuronImperialProject/internal/config"
	"github.com/MontagueM/NeuronImperialProject/internal/logging"
	"github.com/MontagueM/NeuronImperialProject/internal/store"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "neuronsim",
		Short: "Stochastic firing cascades over generated neuron networks",
		Long: `neuronsim generates a layered neuron network, stimulates seed neurons
and follows the resulting firing cascade through the connectivity graph.

Each neuron replays one precomputed action potential, so a run is a
graph traversal rather than a per-neuron ODE solve. Runs are recorded
under .neuronsim/ in the project root.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default ~/.neuronsim/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newWaveformCmd(),
		newGraphCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// loadConfig reads --config (or the default locations) and applies the
// environment overrides.
func loadConfig(cmd *cobra.Command) (*config.SimConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLoggers returns the stderr logger and, at debug level or below, a
// decision logger under the project's state directory.
func newLoggers(cmd *cobra.Command, cfg *config.SimConfig) (*slog.Logger, *logging.DecisionLogger) {
	root, _ := cmd.Flags().GetString("root")
	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	return logger, logging.NewDecisionLogger(store.LocalPath(root), cfg.Logging.Level)
}

// signalContext returns a context cancelled on interrupt.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

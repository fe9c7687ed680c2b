package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MontagueM/NeuronImperialProject/internal/logging"
	"github.com/MontagueM/NeuronImperialProject/internal/mcp"
	"github.com/MontagueM/NeuronImperialProject/internal/store"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools: neuronsim_simulate, neuronsim_waveform, neuronsim_history.
Resources: neuronsim://runs/latest and neuronsim://runs/{id}.

Logs go to stderr as JSON; stdout carries the protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "neuronsim",
				Version: version,
				Root:    root,
				Sim:     cfg,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			decisions := logging.NewDecisionLogger(store.LocalPath(root), cfg.Logging.Level)
			defer decisions.Close()
			server.SetLogger(logging.NewJSONLogger(cfg.Logging.Level, os.Stderr), decisions)

			return server.Run(context.Background())
		},
	}
}

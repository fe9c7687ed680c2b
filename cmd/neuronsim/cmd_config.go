package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MontagueM/NeuronImperialProject/internal/config"
	"github.com/MontagueM/NeuronImperialProject/internal/store"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage neuronsim configuration",
		Long: `View and create neuronsim configuration files.

Configuration is read from ~/.neuronsim/config.yaml, or from the file given
with --config, and NEURONSIM_* environment variables override both.

Examples:
  neuronsim config list                  # Show the effective settings
  neuronsim config init                  # Write defaults to ~/.neuronsim/config.yaml
  neuronsim config init --preset flat -o flat.yaml`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigInitCmd(),
	)
	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := cfg.Marshal()
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")
			presetName, _ := cmd.Flags().GetString("preset")
			force, _ := cmd.Flags().GetBool("force")

			cfg, err := config.Preset(presetName)
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				dir, err := store.EnsureGlobalDir()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, "config.yaml")
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			data, err := cfg.Marshal()
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "created", "path": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "File to write (default ~/.neuronsim/config.yaml)")
	cmd.Flags().String("preset", "cortical", "Settings to write: cortical or flat")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

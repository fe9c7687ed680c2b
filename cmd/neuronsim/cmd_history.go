package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MontagueM/NeuronImperialProject/internal/backup"
	"github.com/MontagueM/NeuronImperialProject/internal/pathutil"
	"github.com/MontagueM/NeuronImperialProject/internal/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
		Long: `List, show and delete runs recorded in .neuronsim/runs.db.

Examples:
  neuronsim history list --limit 5
  neuronsim history show 0f8c2d9e-...
  neuronsim history delete 0f8c2d9e-...
  neuronsim history backup --keep 5
  neuronsim history restore .neuronsim/backups/neuronsim-runs-20260301-120000.000.json.gz`,
	}

	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistoryDeleteCmd(),
		newHistoryBackupCmd(),
		newHistoryRestoreCmd(),
	)
	return cmd
}

// openRunStore opens the project's run database.
func openRunStore(cmd *cobra.Command) (*store.SQLiteRunStore, error) {
	root, _ := cmd.Flags().GetString("root")
	s, err := store.NewSQLiteRunStore(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return s, nil
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			runStore, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer runStore.Close()

			runs, err := runStore.ListRuns(context.Background(), limit)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet. Use 'neuronsim run' to start one.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tNEURONS\tHORIZON\tEXCITE\tFIRINGS")
			for _, r := range runs {
				events := fmt.Sprint(r.EventCount)
				if r.Truncated {
					events += "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%g\t%g\t%s\n",
					r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Population, r.HorizonMS, r.ExcitatoryProb, events)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs (0 for all)")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run with its histogram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			runStore, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer runStore.Close()

			run, err := runStore.GetRun(context.Background(), args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), run)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s\n", run.ID)
			fmt.Fprintf(out, "  Created:   %s\n", run.CreatedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "  Network:   %d neurons, %d edges (rng seed %d)\n", run.Population, run.EdgeCount, run.RNGSeed)
			fmt.Fprintf(out, "  Seeds:     %s\n", joinInts(run.Seeds))
			fmt.Fprintf(out, "  Horizon:   %g ms, refractory %g ms, %s\n", run.HorizonMS, run.RefractoryMS, run.Mode)
			fmt.Fprintf(out, "  Transmit:  excitatory %g, inhibitory %g\n", run.ExcitatoryProb, run.InhibitoryProb)
			fmt.Fprintf(out, "  Firings:   %d", run.EventCount)
			if run.Truncated {
				fmt.Fprint(out, " (truncated)")
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Duration:  %v\n", run.Duration)

			if run.Histogram.Len() > 0 {
				fmt.Fprintln(out)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tCOUNT")
				for i, t := range run.Histogram.Times {
					fmt.Fprintf(w, "%g\t%d\n", t, run.Histogram.Counts[i])
				}
				return w.Flush()
			}
			return nil
		},
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			runStore, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer runStore.Close()

			if err := runStore.DeleteRun(context.Background(), args[0]); err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "deleted", "id": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}

func newHistoryBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive every recorded run to a compressed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")
			keep, _ := cmd.Flags().GetInt("keep")

			allowed, err := pathutil.AllowedBackupDirs(root)
			if err != nil {
				return err
			}
			dir := backup.DefaultDir(root)
			if output == "" {
				output = backup.GeneratePath(dir, time.Now())
			}

			runStore, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer runStore.Close()

			archive, err := backup.Backup(context.Background(), runStore, output, allowed)
			if err != nil {
				return err
			}

			var deleted []string
			if keep > 0 {
				deleted, err = backup.ApplyRetention(dir, &backup.CountPolicy{MaxCount: keep})
				if err != nil {
					return fmt.Errorf("applying retention: %w", err)
				}
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"path":    output,
					"runs":    len(archive.Runs),
					"deleted": deleted,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %d runs to %s\n", len(archive.Runs), output)
			if len(deleted) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d old archives\n", len(deleted))
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Archive path inside .neuronsim/backups (default: timestamped)")
	cmd.Flags().Int("keep", 0, "Keep only this many archives in the project backup directory (0 keeps all)")
	return cmd
}

func newHistoryRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Restore runs from an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			replace, _ := cmd.Flags().GetBool("replace")

			allowed, err := pathutil.AllowedBackupDirs(root)
			if err != nil {
				return err
			}
			mode := backup.RestoreMerge
			if replace {
				mode = backup.RestoreReplace
			}

			runStore, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer runStore.Close()

			result, err := backup.Restore(context.Background(), runStore, args[0], mode, allowed)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d runs (%d skipped, %d deleted)\n", result.Restored, result.Skipped, result.Deleted)
			return nil
		},
	}
	cmd.Flags().Bool("replace", false, "Delete every recorded run before restoring")
	return cmd
}

// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soothill/battery-data-logger/app"
	"github.com/soothill/battery-data-logger/logstore"
	"github.com/soothill/battery-data-logger/monitoring"
)

func init() {
	logTailCmd.Flags().IntVarP(&tailRows, "lines", "n", 10, "Number of rows to show")
	logTailCmd.Flags().BoolVar(&tailJSON, "json", false, "Print rows as JSON")
	logClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Clear without asking for confirmation")
	logReplayCmd.Flags().IntVar(&replayRows, "last", 100, "Number of most recent rows to replay")

	logCmd.AddCommand(logTailCmd, logStatsCmd, logExportCmd, logClearCmd, logReplayCmd)
	rootCmd.AddCommand(logCmd)
}

var (
	tailRows   int
	tailJSON   bool
	clearYes   bool
	replayRows int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect and manage the battery log",
}

var logTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent rows, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if tailRows < 0 {
			return fmt.Errorf("--lines must not be negative")
		}
		store, err := openStore()
		if err != nil {
			return err
		}

		var rows []*monitoring.BatterySample
		for sample, err := range store.Tail(tailRows) {
			if err != nil {
				return err
			}
			rows = append(rows, sample)
		}

		if tailJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "The log has no rows yet.")
			return nil
		}
		return printReadings(cmd.OutOrStdout(), rows)
	},
}

var logStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the whole log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		stats, err := store.Stats()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Log\t%s\n", store.Path())
		fmt.Fprintf(w, "Rows\t%d\n", stats.Rows)
		fmt.Fprintf(w, "Average percentage\t%s\n", floatOrDash(stats.AveragePercentage, "%.2f%%"))
		fmt.Fprintf(w, "Minimum percentage\t%s\n", orDash(stats.MinPercentage, "%d%%"))
		fmt.Fprintf(w, "Average discharge power\t%s\n", floatOrDash(stats.AverageDischargePower, "%.2f W"))
		latest := floatOrDash(stats.LatestEnergy, "%.2f Wh")
		if stats.LatestDevice != "" {
			latest += " (" + stats.LatestDevice + ")"
		}
		fmt.Fprintf(w, "Latest energy\t%s\n", latest)
		runtime := "-"
		if stats.EstimatedRuntime != nil {
			runtime = stats.EstimatedRuntime.String() + " (estimate)"
		}
		fmt.Fprintf(w, "Estimated runtime\t%s\n", runtime)
		return w.Flush()
	},
}

var logExportCmd = &cobra.Command{
	Use:   "export <destination>",
	Short: "Copy the log to another file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.ExportCopy(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", store.Path(), args[0])
		return nil
	},
}

var logClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every row, keeping the header",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		if !clearYes {
			return fmt.Errorf("refusing to clear %s without --yes", store.Path())
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", store.Path())
		return nil
	},
}

var logReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-send the most recent rows to the configured mirrors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store := logstore.New(cfg.LogPath())

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		sinks, failed := app.BuildSinks(ctx, cfg)
		defer app.CloseSinks(sinks)
		if len(sinks) == 0 {
			if len(failed) > 0 {
				return fmt.Errorf("no mirror reachable")
			}
			return fmt.Errorf("no mirrors are enabled in the configuration")
		}

		results, err := app.Replay(ctx, store, sinks, replayRows)
		if err != nil {
			return err
		}
		var firstErr error
		for _, res := range results {
			if res.Err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: FAILED after %d row(s): %v\n", res.Sink, res.Written, res.Err)
				if firstErr == nil {
					firstErr = res.Err
				}
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: replayed %d row(s)\n", res.Sink, res.Written)
		}
		return firstErr
	},
}

// openStore loads the configuration and returns its log store
func openStore() (*logstore.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return logstore.New(cfg.LogPath()), nil
}


// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soothill/battery-data-logger/api"
)

func init() {
	samplerCmd.PersistentFlags().StringVar(&samplerAddr, "addr", "", "API address of a running logger (default: server.listen from config)")
	samplerStartCmd.Flags().DurationVar(&samplerInterval, "interval", 0, "Sampling interval, e.g. 5m (default: configured interval)")

	samplerCmd.AddCommand(samplerStatusCmd, samplerStartCmd, samplerStopCmd, samplerTickCmd)
	rootCmd.AddCommand(samplerCmd)
}

var (
	samplerAddr     string
	samplerInterval time.Duration
)

var samplerCmd = &cobra.Command{
	Use:   "sampler",
	Short: "Control the background sampler of a running logger",
}

var samplerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the sampler is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		status, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !status.Running {
			fmt.Fprintf(out, "stopped (interval %ds)\n", status.IntervalSeconds)
			return nil
		}
		fmt.Fprintf(out, "running (interval %ds, task %s, started %s, %d tick(s))\n",
			status.IntervalSeconds,
			status.Handle.ID,
			status.Handle.StartedAt.Format(time.RFC3339),
			status.Ticks,
		)
		return nil
	},
}

var samplerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sampler, or report the running task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if samplerInterval < 0 {
			return fmt.Errorf("--interval must be positive")
		}
		client, err := apiClient()
		if err != nil {
			return err
		}
		resp, err := client.Start(cmd.Context(), samplerInterval)
		if err != nil {
			return err
		}

		verb := "already running"
		if resp.Started {
			verb = "started"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sampler %s: task %s every %s\n", verb, resp.Handle.ID, resp.Handle.Interval)
		return nil
	},
}

var samplerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the sampler",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		stopped, err := client.Stop(cmd.Context())
		if err != nil {
			return err
		}
		if stopped {
			fmt.Fprintln(cmd.OutOrStdout(), "sampler stopped")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "sampler was not running")
		}
		return nil
	},
}

var samplerTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Sample every battery once on the running logger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := apiClient()
		if err != nil {
			return err
		}
		n, err := client.Tick(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "appended %d row(s)\n", n)
		return nil
	},
}

func apiClient() (*api.Client, error) {
	if samplerAddr != "" {
		return api.NewClient(samplerAddr), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.Server.Listen), nil
}

// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/soothill/battery-data-logger/app"
	"github.com/soothill/battery-data-logger/pkg/logger"
)

func init() {
	runCmd.Flags().StringVar(&runListen, "listen", "", "API listen address (overrides config)")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "Sampling interval, e.g. 5m (overrides config)")
	runCmd.Flags().BoolVar(&runNoAutoStart, "no-autostart", false, "Do not start sampling until requested over the API")
	rootCmd.AddCommand(runCmd)
}

var (
	runListen      string
	runInterval    time.Duration
	runNoAutoStart bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the logger: sample in the background and serve the API",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runListen != "" {
		cfg.Server.Listen = runListen
		cfg.Server.Enabled = true
	}
	if runInterval != 0 {
		cfg.Sampler.IntervalSeconds = int(runInterval / time.Second)
	}
	if runNoAutoStart {
		cfg.Sampler.AutoStart = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info().Str("version", rootCmd.Version).Msg("Starting Battery Data Logger")
	logger.Info().
		Int("interval_seconds", cfg.Sampler.IntervalSeconds).
		Str("sensor", cfg.Sampler.Sensor).
		Str("log_path", cfg.LogPath()).
		Msg("Configuration loaded")

	application, err := app.New(cmd.Context(), cfg, configPath, rootCmd.Version)
	if err != nil {
		return err
	}
	return application.Run(cmd.Context())
}

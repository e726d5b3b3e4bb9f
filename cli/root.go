// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package cli implements the battery-logger command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soothill/battery-data-logger/config"
	"github.com/soothill/battery-data-logger/pkg/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "battery-logger",
	Short: "Battery Data Logger: sample battery telemetry into a CSV log",
	Long: `battery-logger periodically samples every battery the operating system
exposes and appends one row per device to a CSV log. The log can be
inspected, summarised, exported and cleared from the command line or over
the HTTP API served by "battery-logger run".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration named by --config and initializes the
// logger from it
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Initialize("error")
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger.InitializeWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

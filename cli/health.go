// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soothill/battery-data-logger/app"
	"github.com/soothill/battery-data-logger/logstore"
	"github.com/soothill/battery-data-logger/sensor"
)

const healthCheckTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(healthCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Check the log, the sensor and the mirrors, then exit",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("health check failed: could not load config: %w", err)
	}
	out := cmd.OutOrStdout()

	ctx, cancel := context.WithTimeout(cmd.Context(), healthCheckTimeout)
	defer cancel()

	store := logstore.New(cfg.LogPath())
	if err := store.EnsureInitialized(); err != nil {
		return fmt.Errorf("health check failed: log is not writable: %w", err)
	}
	fmt.Fprintf(out, "log:     ok (%s)\n", store.Path())

	s, err := sensor.New(sensor.Options{Kind: cfg.Sampler.Sensor, SysfsRoot: cfg.Sampler.SysfsRoot})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	devices, err := s.Devices(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: sensor %s: %w", s.Name(), err)
	}
	fmt.Fprintf(out, "sensor:  ok (%s, %d device(s))\n", s.Name(), len(devices))

	sinks, failed := app.BuildSinks(ctx, cfg)
	defer app.CloseSinks(sinks)
	for _, sink := range sinks {
		if err := sink.Health(ctx); err != nil {
			failed[sink.Name()] = err
			continue
		}
		fmt.Fprintf(out, "mirror:  ok (%s)\n", sink.Name())
	}
	for name, err := range failed {
		fmt.Fprintf(out, "mirror:  FAILED (%s): %v\n", name, err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("health check failed: %d mirror(s) unhealthy", len(failed))
	}

	fmt.Fprintln(out, "Health check passed")
	return nil
}

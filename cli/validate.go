// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soothill/battery-data-logger/config"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate the configuration file and exit",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if configPath != "" {
		if err := config.ValidateWithSchema(configPath); err != nil {
			fmt.Fprintf(out, "\n❌ Configuration validation FAILED\n")
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "\n❌ Configuration validation FAILED\n")
		return err
	}

	enabled := func(b bool) string {
		if b {
			return "Enabled"
		}
		return "Disabled"
	}

	fmt.Fprintln(out, "\n✅ Configuration validation PASSED")
	fmt.Fprintln(out, "\nConfiguration summary:")
	fmt.Fprintf(out, "  Log Path: %s\n", cfg.LogPath())
	fmt.Fprintf(out, "  Sampling Interval: %ds\n", cfg.Sampler.IntervalSeconds)
	fmt.Fprintf(out, "  Sensor: %s\n", cfg.Sampler.Sensor)
	fmt.Fprintf(out, "  Auto Start: %t\n", cfg.Sampler.AutoStart)
	fmt.Fprintf(out, "  Log Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  API: %s (%s)\n", enabled(cfg.Server.Enabled), cfg.Server.Listen)
	fmt.Fprintf(out, "  Low Battery Alert: %d%%\n", cfg.Alerts.LowBatteryPercent)
	fmt.Fprintf(out, "  Slack Notifications: %s\n", enabled(cfg.Alerts.SlackWebhookURL != ""))
	fmt.Fprintf(out, "  InfluxDB Mirror: %s\n", enabled(cfg.InfluxDB.Enabled))
	fmt.Fprintf(out, "  MQTT Mirror: %s\n", enabled(cfg.MQTT.Enabled))
	fmt.Fprintf(out, "  mDNS Advertise: %s\n", enabled(cfg.Advertise.Enabled))

	fmt.Fprintln(out, "\nAll validation checks passed. Configuration is ready for use.")
	return nil
}

// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soothill/battery-data-logger/logstore"
	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/sensor"
)

func init() {
	sampleCmd.Flags().BoolVar(&sampleAppend, "append", false, "Also append the readings to the log")
	sampleCmd.Flags().BoolVar(&sampleJSON, "json", false, "Print readings as JSON")
	rootCmd.AddCommand(sampleCmd)
}

var (
	sampleAppend bool
	sampleJSON   bool
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Read every battery once and print the result",
	Long: `Read every battery once and print the result. Wear, cycle count and
runtime are rule-of-thumb estimates derived from the reading, not values
reported by the battery.`,
	RunE: runSample,
}

func runSample(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := sensor.New(sensor.Options{Kind: cfg.Sampler.Sensor, SysfsRoot: cfg.Sampler.SysfsRoot})
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	ids, err := s.Devices(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	samples := make([]*monitoring.BatterySample, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Read(ctx, id)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", id, err)
			continue
		}
		samples = append(samples, monitoring.NewSample(now, id, snap))
	}

	if sampleAppend {
		store := logstore.New(cfg.LogPath())
		for _, sample := range samples {
			if err := store.Append(sample); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "appended %d row(s) to %s\n", len(samples), store.Path())
	}

	if sampleJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(samples)
	}
	return printReadings(cmd.OutOrStdout(), samples)
}

func printReadings(out io.Writer, samples []*monitoring.BatterySample) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tSTATE\tPERCENT\tENERGY\tPOWER\tHEALTH\tWEAR*\tCYCLES*\tRUNTIME*")
	for _, s := range samples {
		runtime := "-"
		if s.State == sensor.StateDischarging && s.EnergyNow != nil && s.PowerRate != nil {
			if d, ok := sensor.EstimatedRuntime(*s.EnergyNow, *s.PowerRate); ok {
				runtime = d.String()
			}
		}
		cycles := "-"
		if c := sensor.EstimatedCycles(s.HealthPct); c != nil {
			cycles = fmt.Sprint(*c)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.DeviceID,
			s.State,
			orDash(s.Percentage, "%d%%"),
			floatOrDash(s.EnergyNow, "%.2f Wh"),
			floatOrDash(s.PowerRate, "%.2f W"),
			floatOrDash(s.HealthPct, "%.2f%%"),
			floatOrDash(sensor.WearPercent(s.HealthPct), "%.2f%%"),
			cycles,
			runtime,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, "* estimates")
	return err
}

func orDash(v *int, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func floatOrDash(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

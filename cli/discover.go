// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soothill/battery-data-logger/discovery"
)

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 3*time.Second, "How long to browse")
	rootCmd.AddCommand(discoverCmd)
}

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find loggers advertising their API on the local network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		scanner := discovery.NewScanner(cfg.Advertise.Service, cfg.Advertise.Domain)
		found, err := scanner.Discover(cmd.Context(), discoverTimeout)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(found) == 0 {
			fmt.Fprintln(out, "No loggers found.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESS\tVERSION\tSENSOR")
		for _, inst := range found {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				inst.Name,
				inst.APIAddress(),
				inst.TXTRecord["version"],
				inst.TXTRecord["sensor"],
			)
		}
		return w.Flush()
	},
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"waiver-trend-alerts/internal/app"
)

var (
	runOnce     bool
	runCycles   int
	runInterval time.Duration
	runDate     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runOnce && runCycles > 0 {
			return fmt.Errorf("--once and --cycles are mutually exclusive")
		}
		if runDate != "" {
			if _, err := time.Parse("2006-01-02", runDate); err != nil {
				return fmt.Errorf("invalid --date value (want YYYY-MM-DD): %w", err)
			}
		}

		opts := app.RunOptions{
			Once:     runOnce,
			Cycles:   runCycles,
			Interval: runInterval,
			Date:     runDate,
		}

		return getApp().Run(cmd.Context(), opts)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single cycle and exit")
	runCmd.Flags().IntVar(&runCycles, "cycles", 0, "Run N cycles then exit (0 = run until cancelled)")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "Override inter-cycle interval (defaults to config)")
	runCmd.Flags().StringVar(&runDate, "date", "", "Fetch a specific date (YYYY-MM-DD) instead of latest")
}

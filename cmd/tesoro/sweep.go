package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/tesoro/internal/clock"
	reservationStore "github.com/MrJamesThe3rd/tesoro/internal/reservation/store"
	"github.com/MrJamesThe3rd/tesoro/internal/sweeper"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Release expired held reservations once and exit",
	Long: `Run a single sweeper pass. Useful from cron when the API server runs
with the in-process sweeper disabled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		sw := sweeper.New(reservationStore.New(e.db), clock.NewSystem(), e.log, e.cfg.Sweeper.Interval)

		n, err := sw.SweepOnce(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "released %d expired reservation(s)\n", n)

		return nil
	},
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/tesoro/internal/database"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		if err := database.Migrate(cmd.Context(), e.db); err != nil {
			return err
		}

		e.log.Info("migrations applied")

		return nil
	},
}

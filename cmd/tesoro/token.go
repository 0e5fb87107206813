package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/tesoro/internal/clock"
	"github.com/MrJamesThe3rd/tesoro/internal/http/auth"
	userStore "github.com/MrJamesThe3rd/tesoro/internal/user/store"
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
}

// tokenCmd stands in for the login flow, which lives outside this service.
var tokenCmd = &cobra.Command{
	Use:   "token USER_ID",
	Short: "Issue a bearer token for an existing user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}

		ttl, _ := cmd.Flags().GetDuration("ttl")

		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		if e.cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}

		u, err := userStore.New(e.db).Get(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("looking up user: %w", err)
		}

		token, err := auth.New(e.cfg.Auth.JWTSecret, clock.NewSystem()).Issue(auth.Actor{ID: u.ID, Role: u.Role}, ttl)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)

		return nil
	},
}

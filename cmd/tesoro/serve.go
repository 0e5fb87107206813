package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	catalogStore "github.com/MrJamesThe3rd/tesoro/internal/catalog/store"
	"github.com/MrJamesThe3rd/tesoro/internal/clock"
	"github.com/MrJamesThe3rd/tesoro/internal/database"
	"github.com/MrJamesThe3rd/tesoro/internal/finance"
	tesoroHttp "github.com/MrJamesThe3rd/tesoro/internal/http"
	"github.com/MrJamesThe3rd/tesoro/internal/http/auth"
	requestHandler "github.com/MrJamesThe3rd/tesoro/internal/http/request"
	reservationHandler "github.com/MrJamesThe3rd/tesoro/internal/http/reservation"
	"github.com/MrJamesThe3rd/tesoro/internal/request"
	requestStore "github.com/MrJamesThe3rd/tesoro/internal/request/store"
	"github.com/MrJamesThe3rd/tesoro/internal/reservation"
	reservationStore "github.com/MrJamesThe3rd/tesoro/internal/reservation/store"
	"github.com/MrJamesThe3rd/tesoro/internal/sweeper"
	userStore "github.com/MrJamesThe3rd/tesoro/internal/user/store"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("migrate", true, "Apply migrations before serving")
	serveCmd.Flags().Bool("sweeper", true, "Run the expiry sweeper in-process")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if e.cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		if err := database.Migrate(ctx, e.db); err != nil {
			return err
		}
	}

	mode, err := finance.ParseTaxMode(e.cfg.Finance.TaxMode)
	if err != nil {
		return err
	}

	clk := clock.NewSystem()

	var (
		reservations = reservationStore.New(e.db)

		reservationService = reservation.NewService(reservations, clk,
			reservation.WithRequestTTL(e.cfg.Reservation.RequestTTL),
			reservation.WithLockTTL(e.cfg.Reservation.LockTTL),
			reservation.WithLogger(e.log.With("component", "ReservationService")),
		)
		requestService = request.NewService(
			requestStore.New(e.db),
			reservationService,
			catalogStore.New(e.db),
			userStore.New(e.db),
			finance.NewEngine(mode),
			clk,
			request.WithLogger(e.log.With("component", "RequestService")),
		)
	)

	router := tesoroHttp.New(
		tesoroHttp.Options{
			Log:           e.log,
			Authenticator: auth.New(e.cfg.Auth.JWTSecret, clk),
			CORSOrigins:   e.cfg.Server.CORSOrigins,
		},
		reservationHandler.NewHandler(reservationService, e.log),
		requestHandler.NewHandler(requestService, e.log),
	)

	var wg sync.WaitGroup

	if runSweeper, _ := cmd.Flags().GetBool("sweeper"); runSweeper {
		sw := sweeper.New(reservations, clk, e.log, e.cfg.Sweeper.Interval)

		wg.Go(func() { sw.Run(ctx) })
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", e.cfg.App.Port),
		Handler:           http.TimeoutHandler(router, e.cfg.Server.Timeout, `{"error":{"code":"timeout","message":"request timed out"}}`),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		e.log.Info("starting server", "addr", srv.Addr, "tax_mode", mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		e.log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			e.log.Error("graceful shutdown failed", "error", err)
		}
	}

	wg.Wait()

	return nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/tesoro/internal/config"
	"github.com/MrJamesThe3rd/tesoro/internal/database"
	"github.com/MrJamesThe3rd/tesoro/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "tesoro",
	Short: "Budget reservations and disbursement requests",
	Long: `Tesoro reserves budget lines, prices per-diem and expense charges with
their taxes, and moves disbursement requests from approval to treasury.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every subcommand needs before doing its own work.
type env struct {
	cfg *config.Config
	log *logger.Logger
	db  *sql.DB
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.App.LogMode)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	db, err := database.New(ctx, cfg.ConnectionString())
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &env{cfg: cfg, log: log, db: db}, nil
}

func (e *env) close() {
	_ = e.db.Close()
	e.log.Sync()
}

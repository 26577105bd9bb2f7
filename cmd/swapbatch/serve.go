package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/swapbatch/swapbatch/internal/api"
	"github.com/swapbatch/swapbatch/internal/config"
	"github.com/swapbatch/swapbatch/internal/db"
	"github.com/swapbatch/swapbatch/internal/history"
	"github.com/swapbatch/swapbatch/internal/logging"
	"github.com/swapbatch/swapbatch/internal/preview"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve run history and outputs over HTTP on localhost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withContext(a.serve)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger

	database, err := db.New(a.cfg.DBPath(), logging.WithComponent(logger, "db"))
	if err != nil {
		return err
	}
	defer database.Close()

	if a.cfg.APIToken() == "" {
		logger.Warn("history API running without a token")
	}

	server := api.NewServer(api.ServerConfig{
		Port:       a.cfg.Port(),
		Token:      a.cfg.APIToken(),
		Repository: history.NewRepository(database.Conn()),
		Preview:    preview.NewServer(a.cfg.OutputDir(), logging.WithComponent(logger, "preview")),
		Logger:     logging.WithComponent(logger, "api"),
		StartTime:  time.Now(),
		Version:    config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

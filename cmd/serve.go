package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/api/handlers"
	"github.com/citizenvoice/citizenvoice-api/clients"
	"github.com/citizenvoice/citizenvoice-api/config"
)

func serveCmd(cfg *config.Config) *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  `Connect to MongoDB and Redis, start the reminder scheduler and serve the API on PORT.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if noScheduler {
				cfg.EnableScheduler = false
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run the background scheduler")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := handlers.App{Config: *cfg}
	if err := a.Initialize(); err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := clients.NewMLClient(cfg.ML).Health(pingCtx); err != nil {
		zap.S().Warnw("classifier is unreachable, classification will use the fallback", "error", err)
	}
	cancel()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", cfg.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.S().Infow("citizenvoice-api is up and running",
			"port", cfg.Port,
			"url", cfg.BaseUrl,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = a.Close(context.Background())
			return err
		}
	case <-ctx.Done():
		zap.S().Info("shutting down")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorw("http shutdown", "error", err)
	}
	return a.Close(shutdownCtx)
}

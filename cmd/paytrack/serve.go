package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpx "paytrack/internal/http"
	"paytrack/internal/services/tracking"
	"paytrack/internal/tracker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local tracker API",
	Long:  "Serve tracker sessions and receipts over HTTP for a local presentation layer.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup := newTokenStore()
	defer cleanup()

	var opts []tracker.Option
	if cfg.Tracker.DropStale {
		opts = append(opts, tracker.WithDropStale())
	}
	svc := tracking.NewService(ctx, newStatusClient(store), opts...)
	if cfg.Tracker.Retention > 0 {
		go tracking.NewJanitor(svc, cfg.Tracker.Retention).Run(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      httpx.NewRouter(httpx.RouterDependencies{Config: cfg, Tracking: svc}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("paytrack API listening on :%s", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		svc.StopAll()
		return err
	}

	svc.StopAll()
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	log.Info().Msg("server stopped")
	return nil
}

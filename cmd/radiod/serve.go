package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/radio-curator/internal/bootstrap"
	"github.com/maauso/radio-curator/internal/schedule"
	"github.com/maauso/radio-curator/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, the pipeline worker and the command server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Info("starting radio curator",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("audio_dir", cfg.AudioDir),
		slog.String("ledger", cfg.LedgerBackend),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error("failed to close dependencies", slog.String("error", err.Error()))
		}
	}()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if cfg.ResetPlayedOnStart {
		deps.Worker.Execute(ctx, schedule.KindResetPlayed, schedule.OriginStartup)
	}

	// Background loops stop when ctx is cancelled.
	var wg sync.WaitGroup
	background := map[string]func(context.Context) error{
		"worker":    deps.Worker.Run,
		"scheduler": deps.Scheduler.Run,
		"reporter": func(ctx context.Context) error {
			deps.Reporter.Run(ctx)
			return nil
		},
	}
	if deps.Watcher != nil {
		background["dictionary watcher"] = deps.Watcher.Run
	}
	for name, loop := range background {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background loop stopped", slog.String("loop", name), slog.String("error", err.Error()))
			}
		}()
	}

	handlers := server.NewHandlers(deps.Player, deps.Worker, deps.Runs, logger)
	routerCfg := server.DefaultConfig()
	routerCfg.AllowedOrigins = cfg.AllowedOrigins
	routerCfg.TokenSecret = []byte(cfg.CommandJWTSecret)
	router := server.NewRouter(handlers, logger, routerCfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	var runErr error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown failed: %w", err)
	}
	cancel()
	wg.Wait()

	if runErr == nil {
		logger.Info("stopped gracefully")
	}
	return runErr
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"namegofer/internal/config"
	"namegofer/internal/server"
	"namegofer/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lookup server",
	Long: `Serves GET /data-source/{id}/record-names/?record_ids=1,2 and JSON-RPC
over WebSocket at /ws. Lookups arriving within the grace window are sent to
the builder API as one request per data source.

Settings come from the config file and NAMEGOFER_* environment variables.
logLevel, graceDelay and statsLogInterval are reloaded when the file changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to config file (.json, .yaml)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("config", serveConfigPath).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("apiUrl", cfg.APIURL).
		Int("graceDelay", cfg.GraceDelay).
		Msg("starting namegofer")

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OtelEndpoint, "namegofer")
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	var watcher *config.Watcher
	if serveConfigPath != "" {
		watcher, err = config.NewWatcher(serveConfigPath, config.DefaultReloadDelay, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("config reload disabled")
		} else {
			watcher.OnChange(srv.ApplyConfig)
			if err := watcher.Start(ctx); err != nil {
				logger.Warn().Err(err).Msg("config reload disabled")
				watcher.Stop()
				watcher = nil
			}
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	if watcher != nil {
		watcher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to flush traces")
	}
	return nil
}

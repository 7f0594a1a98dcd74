package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tournevent/shipping/internal/server"
	"github.com/tournevent/shipping/internal/telemetry"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "shipping",
	Short:   "Tournevent Shipping - multi-carrier rating and label service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.Background())
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	catalog, err := initCatalog(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	registry := initShipperRegistry(cfg, st, logger)
	if registry.Count() == 0 {
		logger.Warn("No carrier gateway enabled")
	}

	receipts, closeReceipts := initReceipts(ctx, cfg, st, logger)
	defer closeReceipts()

	publisher, closePublisher := initPublisher(cfg, logger)
	defer closePublisher()

	svc := initService(cfg, catalog, registry, st, receipts, publisher, metrics, logger)

	logger.Info("Starting Tournevent Shipping",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.Strings("gateways", registry.Names()),
	)

	srv := server.New(server.Config{Port: cfg.Port, Gatherer: reg, Ready: st.Ping}, svc, logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	logger.Info("Database schema is up to date", zap.String("driver", cfg.DatabaseDriver))
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tournevent/fulfillment/internal/cityimport"
	"github.com/tournevent/fulfillment/internal/server"
	"github.com/tournevent/fulfillment/internal/store"
	"github.com/tournevent/fulfillment/internal/telemetry"
	"github.com/tournevent/fulfillment/internal/zone"
	"go.uber.org/zap"
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
	Use:     "fulfillment",
	Short:   "Storefront order fulfillment service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

var importCitiesCmd = &cobra.Command{
	Use:   "import-cities",
	Short: "Replace the city table with the rows of a CSV file",
	Long:  "Replace the city table with the rows of a CSV file with the header name,code,area,region.",
	RunE:  runImportCities,
}

func init() {
	importCitiesCmd.Flags().String("file", "", "path to the cities CSV file")
	_ = importCitiesCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(serveCmd, migrateCmd, importCitiesCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.WithoutCancel(ctx))
	}

	db, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close(db)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	registry := initShipperRegistry(cfg, logger, tracer, metrics)
	if registry.Count() == 0 {
		logger.Warn("No carriers enabled, checkouts and quotes will fail")
	}

	notifier, closeEvents, err := initNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	orch := initOrchestrator(cfg, db, registry, notifier, metrics, logger, tracer)
	cities := store.NewCityRepository(db)

	logger.Info("Starting fulfillment service",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.Strings("carriers", registry.Names()),
	)

	srv := server.New(server.Config{
		Port:          cfg.Port,
		ServiceName:   cfg.ServiceName,
		DebugPayloads: cfg.DebugPayloads,
	}, server.Deps{
		Fulfillment: orch,
		Zones:       zone.NewResolver(cities, logger),
		Cities:      cities,
		Ping:        func(ctx context.Context) error { return store.Ping(ctx, db) },
		Gatherer:    prometheus.DefaultGatherer,
		Logger:      logger,
	})
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close(db)

	if err := store.Migrate(cmd.Context(), db); err != nil {
		return err
	}
	logger.Info("Schema migrated", zap.String("driver", cfg.DBDriver))
	return nil
}

func runImportCities(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	db, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close(db)

	n, err := cityimport.Import(cmd.Context(), f, store.NewCityRepository(db), logger)
	if err != nil {
		return fmt.Errorf("importing %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d cities\n", n)
	return nil
}

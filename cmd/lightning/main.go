// Command lightning refreshes the AICC lightning strike tables in PostGIS.
//
// By default it runs both feeds once and exits 0 whatever the outcome;
// failures are reported through logs and metrics. With RUN_INTERVAL set it
// keeps running, refreshing on every interval and serving health endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/lightning-etl/internal/adapter/http"
	"github.com/couchcryptid/lightning-etl/internal/adapter/arcgis"
	kafkaadapter "github.com/couchcryptid/lightning-etl/internal/adapter/kafka"
	"github.com/couchcryptid/lightning-etl/internal/adapter/ogr"
	"github.com/couchcryptid/lightning-etl/internal/adapter/postgis"
	"github.com/couchcryptid/lightning-etl/internal/adapter/staging"
	"github.com/couchcryptid/lightning-etl/internal/config"
	"github.com/couchcryptid/lightning-etl/internal/domain"
	"github.com/couchcryptid/lightning-etl/internal/observability"
	"github.com/couchcryptid/lightning-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	stages := pipeline.Stages{
		Fetcher:  arcgis.NewClient(cfg.FetchTimeout, logger),
		Enricher: domain.NewEnricher(nil),
		Writer:   staging.NewWriter(),
		Loader: ogr.NewLoader(ogr.Config{
			Binary:    cfg.OgrBinary,
			PGString:  cfg.PGString,
			ExtraArgs: cfg.OgrExtraArgs,
			Timeout:   cfg.LoadTimeout,
		}, logger),
	}

	if cfg.VerifyLoad {
		stages.Verifier = postgis.NewVerifier(cfg.PGString)
		logger.Info("load verification enabled")
	}

	// Refresh notifications (enabled by KAFKA_BROKERS).
	var notifier *kafkaadapter.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		notifier = kafkaadapter.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		stages.Notifier = notifier
		logger.Info("refresh notifications enabled", "topic", cfg.KafkaTopic)
	}

	runner := pipeline.New(stages, logger, metrics, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunInterval > 0 {
		serve(ctx, cfg, runner, logger)
	} else {
		runOnce(ctx, cfg, runner, metrics, logger)
	}

	if notifier != nil {
		if err := notifier.Close(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}
}

// runOnce refreshes every feed a single time. Feed failures are already
// logged by the runner and do not change the exit status.
func runOnce(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, metrics *observability.Metrics, logger *slog.Logger) {
	results := runner.RunAll(ctx, cfg.Feeds())

	failed := 0
	for _, res := range results {
		if !res.OK() {
			failed++
		}
	}
	logger.Info("lightning refresh complete", "succeeded", len(results)-failed, "failed", failed)

	if cfg.PushgatewayURL != "" {
		if err := observability.Push(ctx, cfg.PushgatewayURL, metrics); err != nil {
			logger.Error("pushgateway error", "error", err)
		}
	}
}

// serve refreshes on RUN_INTERVAL until a shutdown signal, exposing health,
// status and metrics endpoints meanwhile.
func serve(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, logger *slog.Logger) {
	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, runner, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runner.Schedule(ctx, cfg.Feeds(), cfg.RunInterval)
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

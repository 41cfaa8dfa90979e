package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/station-insight-service/internal/adapter/catalog"
	"github.com/couchcryptid/station-insight-service/internal/adapter/gemini"
	"github.com/couchcryptid/station-insight-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/station-insight-service/internal/adapter/kafka"
	"github.com/couchcryptid/station-insight-service/internal/adapter/mapbox"
	"github.com/couchcryptid/station-insight-service/internal/adapter/stationapi"
	"github.com/couchcryptid/station-insight-service/internal/analysis"
	"github.com/couchcryptid/station-insight-service/internal/config"
	"github.com/couchcryptid/station-insight-service/internal/conversation"
	"github.com/couchcryptid/station-insight-service/internal/domain"
	"github.com/couchcryptid/station-insight-service/internal/observability"
	"github.com/couchcryptid/station-insight-service/internal/queue"
	"github.com/couchcryptid/station-insight-service/internal/resolve"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	geoClient := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
	geocoder, err := mapbox.NewCachedGeocoder(geoClient, cfg.MapboxCacheSize, metrics)
	if err != nil {
		logger.Error("failed to create geocoder cache", "error", err)
		os.Exit(1)
	}

	llm, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.InferenceTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to create completion client", "error", err)
		os.Exit(1)
	}

	// Every provider call, from resolution or analysis, goes through one queue.
	q := queue.New(cfg.InferenceMinInterval, nil, logger, metrics)
	provider := queue.NewThrottled(llm, q, metrics)

	stations := stationapi.NewClient(stationapi.Config{
		BaseURL:      cfg.StationAPIURL,
		Timeout:      cfg.StationAPITimeout,
		HistoryHours: cfg.HistoryHours,
	}, logger)

	cat, err := loadCatalog(ctx, cfg, stations)
	if err != nil {
		logger.Error("failed to load station catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("station catalog loaded", "stations", cat.Len())

	resolver := resolve.NewService(
		conversation.NewResolver(provider, logger),
		geocoder,
		cat,
		provider,
		resolve.Policy{
			RadiusKm:         cfg.SearchRadiusKm,
			MaxStations:      cfg.MaxStations,
			FallbackStations: cfg.FallbackStations,
		},
		logger,
		metrics,
	)

	opts := analysis.Options{
		Gate: domain.QualityGate{
			StalenessCeiling: cfg.StalenessCeiling,
			MinPoints:        cfg.MinDataPoints,
		},
		PlausibilityCheck: cfg.PlausibilityCheck,
	}
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaAnalysisTopic, logger)
		opts.Recorder = publisher
		logger.Info("analysis records enabled", "topic", cfg.KafkaAnalysisTopic)
	}
	analyzer := analysis.NewService(stations, provider, opts, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Resolver:    resolver,
		Analyzer:    analyzer,
		Catalog:     cat,
		Ready:       cat,
		MaxStations: cfg.MaxStations,
	}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// loadCatalog reads STATIONS_FILE when set, otherwise snapshots the station API.
func loadCatalog(ctx context.Context, cfg *config.Config, src domain.StationCatalog) (*catalog.Catalog, error) {
	if cfg.StationsFile != "" {
		return catalog.LoadFile(cfg.StationsFile)
	}
	return catalog.Snapshot(ctx, src)
}

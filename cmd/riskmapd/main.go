package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	kafkaadapter "github.com/tidewatch/riskmap-service/internal/adapter/kafka"
	"github.com/tidewatch/riskmap-service/internal/adapter/mapbox"
	"github.com/tidewatch/riskmap-service/internal/aggregator"
	"github.com/tidewatch/riskmap-service/internal/config"
	"github.com/tidewatch/riskmap-service/internal/domain"
	"github.com/tidewatch/riskmap-service/internal/feed"
	"github.com/tidewatch/riskmap-service/internal/locator"
	"github.com/tidewatch/riskmap-service/internal/mapconfig"
	"github.com/tidewatch/riskmap-service/internal/observability"
	"github.com/tidewatch/riskmap-service/internal/repository"
	"github.com/tidewatch/riskmap-service/internal/server"
	"github.com/tidewatch/riskmap-service/internal/state"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	store := state.New()

	// Geocoding is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	mapCfg := mapconfig.NewClient(cfg.MapConfigBaseURL, cfg.MapConfigTimeout, store, logger, metrics)

	provider := &locator.StaticProvider{Denied: !cfg.PermissionGranted}
	if cfg.DeviceLatitude != nil && cfg.DeviceLongitude != nil {
		provider.Coord = domain.Coordinate{
			Latitude:  *cfg.DeviceLatitude,
			Longitude: *cfg.DeviceLongitude,
		}
	} else {
		// No position source configured; the resolver falls through to
		// the coordinate-free map configuration.
		provider.Denied = true
	}

	resolver := locator.New(store, provider, geocoder, mapCfg, logger, metrics,
		locator.WithFixTimeout(cfg.FixTimeout),
		locator.WithFixMaxAge(cfg.FixMaxAge),
	)

	signals := feed.NewSignalStore()
	reports := feed.NewReportStore()

	var repo *repository.ReportRepository
	if cfg.DBPath != "" {
		repo, err = repository.NewSQLite(cfg.DBPath)
		if err != nil {
			logger.Error("failed to open report database", "error", err, "path", cfg.DBPath)
			os.Exit(1)
		}
		defer repo.Close()

		// Replay persisted reports so a restart does not lose the feed.
		persisted, err := repo.List(context.Background())
		if err != nil {
			logger.Error("failed to replay persisted reports", "error", err)
			os.Exit(1)
		}
		reports.Replace(persisted)
		logger.Info("replayed persisted reports", "count", len(persisted))
	}

	agg := aggregator.New(store, signals, reports, logger, metrics)

	srv := server.NewServer(cfg.HTTPAddr, server.Deps{
		Store:       store,
		Resolver:    resolver,
		MapConfig:   mapCfg,
		Reports:     reports,
		Repo:        repoOrNil(repo),
		Ready:       agg,
		Logger:      logger,
		Metrics:     metrics,
		CORSOrigins: cfg.CORSOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	go func() {
		if err := agg.Run(ctx); err != nil {
			logger.Error("aggregator error", "error", err)
		}
	}()

	var consumers []*kafkaadapter.Consumer
	if cfg.KafkaEnabled {
		sc := kafkaadapter.NewSignalConsumer(cfg.KafkaBrokers, cfg.KafkaSignalsTopic, cfg.KafkaGroupID, signals, logger, metrics)
		rc := kafkaadapter.NewReportConsumer(cfg.KafkaBrokers, cfg.KafkaReportsTopic, cfg.KafkaGroupID, reports, logger, metrics)
		consumers = append(consumers, sc, rc)
		for _, c := range consumers {
			c := c
			go func() {
				if err := c.Run(ctx); err != nil {
					logger.Error("feed consumer error", "error", err)
				}
			}()
		}
		logger.Info("kafka ingestion enabled", "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka ingestion disabled")
	}

	// Initial resolution pass. The map configuration is fetched with
	// whatever coordinate the pass produced; on denial or failure the
	// coordinate-free default keeps the map usable.
	go func() {
		resolveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if _, err := resolver.Resolve(resolveCtx); err != nil {
			logger.Warn("initial location resolution incomplete", "error", err)
		}
		var coord *domain.Coordinate
		if c, ok := store.Coordinate(); ok {
			coord = &c
		}
		mapCfg.Get(resolveCtx, coord)
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	for _, c := range consumers {
		if err := c.Close(); err != nil {
			logger.Error("feed consumer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// repoOrNil avoids handing the server a typed nil behind its interface.
func repoOrNil(repo *repository.ReportRepository) server.ReportSaver {
	if repo == nil {
		return nil
	}
	return repo
}

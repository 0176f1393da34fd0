// Command stormd polls precipitation stations, delineates storms and
// publishes them to SQLite and Kafka while serving a read-only API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/metevents/internal/adapter/cache"
	"github.com/couchcryptid/metevents/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/metevents/internal/adapter/kafka"
	"github.com/couchcryptid/metevents/internal/adapter/sqlite"
	"github.com/couchcryptid/metevents/internal/adapter/station"
	"github.com/couchcryptid/metevents/internal/config"
	"github.com/couchcryptid/metevents/internal/domain"
	"github.com/couchcryptid/metevents/internal/observability"
	"github.com/couchcryptid/metevents/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		slog.Error("stormd failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher, checks, closeCache, err := newFetcher(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	store, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open storm store: %w", err)
	}
	defer store.Close()
	checks = append(checks, store)

	loaders := pipeline.MultiLoader{store}
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loaders = append(loaders, writer)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka sink disabled")
	}

	detector := pipeline.NewDetector(fetcher, cfg.Storm, logger)
	p := pipeline.New(detector, loaders, logger, metrics, pipeline.Options{
		Stations:     cfg.Stations,
		PollInterval: cfg.PollInterval,
		Lookback:     cfg.Lookback,
		Concurrency:  cfg.FetchConcurrency,
	})
	checks = append(checks, p)

	srv := httpadapter.NewServer(httpadapter.Options{
		Addr:      cfg.HTTPAddr,
		RateLimit: cfg.APIRateLimit,
		Stations:  cfg.Stations,
	}, checks, store, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start polling pipeline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
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
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// newFetcher builds the station registry behind the configured series cache.
func newFetcher(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (domain.PrecipFetcher, readinessChecks, func(), error) {
	registry := station.NewRegistryFromConfig(cfg, metrics, logger)
	noop := func() {}

	switch cfg.CacheBackend {
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		}, logger)
		if err != nil {
			return nil, nil, noop, err
		}
		closeFn := func() {
			if err := rs.Close(); err != nil {
				logger.Error("redis close error", "error", err)
			}
		}
		return cache.NewCachedFetcher(registry, rs, "redis", metrics, logger), readinessChecks{rs}, closeFn, nil
	case "memory":
		ms := cache.NewMemoryStore(cfg.CacheSize, cfg.CacheTTL, nil)
		logger.Info("memory series cache enabled", "size", cfg.CacheSize, "ttl", cfg.CacheTTL)
		return cache.NewCachedFetcher(registry, ms, "memory", metrics, logger), nil, noop, nil
	default:
		logger.Info("series cache disabled")
		return registry, nil, noop, nil
	}
}

// readinessChecks is ready when every check passes.
type readinessChecks []sharedobs.ReadinessChecker

func (c readinessChecks) CheckReadiness(ctx context.Context) error {
	for _, check := range c {
		if err := check.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

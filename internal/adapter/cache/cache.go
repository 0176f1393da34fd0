// Package cache memoizes station precipitation fetches in memory or Redis.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/metevents/internal/domain"
	"github.com/couchcryptid/metevents/internal/observability"
)

// Store holds fetched series by key.
type Store interface {
	Get(ctx context.Context, key string) (domain.Series, bool)
	Put(ctx context.Context, key string, s domain.Series)
}

// CachedFetcher wraps a PrecipFetcher with a series cache.
type CachedFetcher struct {
	inner   domain.PrecipFetcher
	store   Store
	backend string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedFetcher creates a cache decorator around a fetcher. backend labels
// the hit and miss metrics.
func NewCachedFetcher(inner domain.PrecipFetcher, store Store, backend string, metrics *observability.Metrics, logger *slog.Logger) *CachedFetcher {
	return &CachedFetcher{
		inner:   inner,
		store:   store,
		backend: backend,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *CachedFetcher) FetchAccumulatedPrecip(ctx context.Context, station domain.Station, start, stop time.Time) (domain.Series, error) {
	key := Key(station, start, stop)
	if s, ok := c.store.Get(ctx, key); ok {
		c.metrics.FetchCache.WithLabelValues(c.backend, "hit").Inc()
		return s, nil
	}
	c.metrics.FetchCache.WithLabelValues(c.backend, "miss").Inc()

	s, err := c.inner.FetchAccumulatedPrecip(ctx, station, start, stop)
	if err != nil {
		return s, err
	}
	// Only cache non-empty series so a station that is briefly silent is retried.
	if s.Len() > 0 {
		c.store.Put(ctx, key, s)
		c.logger.Debug("series cached", "key", key, "backend", c.backend)
	}
	return s, nil
}

// Key identifies a fetch window at daily resolution, so polls within the same
// day share an entry until it expires.
func Key(station domain.Station, start, stop time.Time) string {
	return fmt.Sprintf("series:%s:%s:%s", station, start.UTC().Format(time.DateOnly), stop.UTC().Format(time.DateOnly))
}

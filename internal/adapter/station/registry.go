package station

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/metevents/internal/config"
	"github.com/couchcryptid/metevents/internal/domain"
	"github.com/couchcryptid/metevents/internal/observability"
)

// Registry dispatches fetches to the client registered for a station's source.
type Registry struct {
	fetchers map[domain.Source]domain.PrecipFetcher
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[domain.Source]domain.PrecipFetcher)}
}

// NewRegistryFromConfig wires the NRCS, CDEC and Mesowest clients.
func NewRegistryFromConfig(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Registry {
	opts := func(baseURL string) Options {
		return Options{
			BaseURL:   baseURL,
			Timeout:   cfg.FetchTimeout,
			RateLimit: cfg.FetchRateLimit,
			Metrics:   metrics,
			Logger:    logger,
		}
	}

	r := NewRegistry()
	r.Register(domain.SourceNRCS, NewNRCSClient(opts(cfg.NRCSBaseURL)))
	r.Register(domain.SourceCDEC, NewCDECClient(opts(cfg.CDECBaseURL)))
	r.Register(domain.SourceMesowest, NewMesowestClient(cfg.MesowestToken, opts(cfg.MesowestBaseURL)))
	return r
}

// Register sets the fetcher for src, replacing any previous one.
func (r *Registry) Register(src domain.Source, f domain.PrecipFetcher) {
	r.fetchers[src] = f
}

// Sources lists the registered sources in name order.
func (r *Registry) Sources() []domain.Source {
	out := make([]domain.Source, 0, len(r.fetchers))
	for src := range r.fetchers {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) FetchAccumulatedPrecip(ctx context.Context, station domain.Station, start, stop time.Time) (domain.Series, error) {
	f, ok := r.fetchers[station.Source]
	if !ok {
		return domain.Series{}, fmt.Errorf("%w: no client for %q", domain.ErrInvalidSource, station.Source)
	}
	return f.FetchAccumulatedPrecip(ctx, station, start, stop)
}

// Package station pulls daily accumulated precipitation from station networks.
package station

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/metevents/internal/domain"
	"github.com/couchcryptid/metevents/internal/observability"
)

// seriesName labels every series produced by this package.
const seriesName = "precip_accum"

// httpSource holds the transport shared by the network clients.
type httpSource struct {
	source     domain.Source
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Options configure a network client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

func newHTTPSource(source domain.Source, opts Options) httpSource {
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	return httpSource{
		source:     source,
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
}

// getJSON issues a rate-limited GET and decodes the JSON body into v.
func (h *httpSource) getJSON(ctx context.Context, fullURL string, v any) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit: %w", h.source, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := h.httpClient.Do(req)
	h.metrics.FetchDuration.WithLabelValues(string(h.source)).Observe(time.Since(start).Seconds())
	if err != nil {
		h.recordOutcome("error")
		return fmt.Errorf("%s request: %w", h.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.recordOutcome("error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s API error: status %d: %s", h.source, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		h.recordOutcome("error")
		return fmt.Errorf("decode %s response: %w", h.source, err)
	}
	return nil
}

func (h *httpSource) recordOutcome(outcome string) {
	h.metrics.FetchRequests.WithLabelValues(string(h.source), outcome).Inc()
}

// finish records the request outcome for a decoded series.
func (h *httpSource) finish(station domain.Station, s domain.Series) domain.Series {
	if s.Len() == 0 {
		h.recordOutcome("empty")
		h.logger.Warn("station returned no samples", "station", station.String())
		return s
	}
	h.recordOutcome("success")
	h.logger.Debug("station fetched", "station", station.String(), "samples", s.Len())
	return s
}

// dailySample is one decoded reading keyed to a UTC calendar day.
type dailySample struct {
	day   time.Time
	value float64
}

// buildDailySeries sorts samples by day and keeps the last reading of each day.
func buildDailySeries(samples []dailySample) (domain.Series, error) {
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].day.Before(samples[j].day) })

	times := make([]time.Time, 0, len(samples))
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		n := len(times)
		if n > 0 && times[n-1].Equal(s.day) {
			if !math.IsNaN(s.value) {
				values[n-1] = s.value
			}
			continue
		}
		times = append(times, s.day)
		values = append(values, s.value)
	}
	return domain.NewSeries(seriesName, times, values)
}

// utcDay truncates t to midnight of its calendar date, read in t's location.
func utcDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

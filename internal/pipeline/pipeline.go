// Package pipeline runs the periodic poll-detect-load loop over configured stations.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/metevents/internal/domain"
	"github.com/couchcryptid/metevents/internal/observability"
)

const (
	defaultRetryBackoff = 200 * time.Millisecond
	maxRetryBackoff     = 5 * time.Second
	// maxLoadAttempts bounds retries within a cycle. Records dropped here are
	// detected again next cycle because lookback windows overlap.
	maxLoadAttempts = 5
)

// Detector finds the storms recorded at a station within [start, stop].
type Detector interface {
	Detect(ctx context.Context, station domain.Station, start, stop time.Time) ([]domain.StormRecord, error)
}

// BatchLoader writes storm records to a destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, records []domain.StormRecord) error
}

// Options configure the polling loop.
type Options struct {
	Stations     []domain.Station
	PollInterval time.Duration
	Lookback     time.Duration
	Concurrency  int
	RetryBackoff time.Duration   // first load retry delay; defaults to 200ms
	Clock        clockwork.Clock // defaults to the real clock
}

// Pipeline orchestrates the poll-detect-load loop.
type Pipeline struct {
	detector Detector
	loader   BatchLoader
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool

	stations     []domain.Station
	pollInterval time.Duration
	lookback     time.Duration
	concurrency  int
	retryBackoff time.Duration
	clock        clockwork.Clock
}

// New creates a Pipeline with the given stages and observability.
func New(d Detector, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	p := &Pipeline{
		detector:     d,
		loader:       l,
		logger:       logger,
		metrics:      metrics,
		stations:     opts.Stations,
		pollInterval: opts.PollInterval,
		lookback:     opts.Lookback,
		concurrency:  opts.Concurrency,
		retryBackoff: opts.RetryBackoff,
		clock:        opts.Clock,
	}
	if p.concurrency <= 0 {
		p.concurrency = 1
	}
	if p.retryBackoff <= 0 {
		p.retryBackoff = defaultRetryBackoff
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	return p
}

// CheckReadiness returns nil once a cycle has loaded its records, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a cycle yet")
	}
	return nil
}

// Run executes a cycle immediately and then every poll interval until the
// context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", p.pollInterval)
	}
	p.logger.Info("pipeline started",
		"stations", len(p.stations),
		"poll_interval", p.pollInterval,
		"lookback", p.lookback,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	ticker := p.clock.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// RunOnce polls every station over the lookback window ending now, then loads
// all detected storms. Station failures are logged and skipped; the returned
// error reports only a load that failed after retries.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	start := p.clock.Now()
	runID := uuid.NewString()
	stop := start.UTC()
	from := stop.Add(-p.lookback)

	logger := p.logger.With("run_id", runID)
	records := p.detectAll(ctx, logger, runID, from, stop)
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.loadWithRetry(ctx, logger, records); err != nil {
		return err
	}

	p.metrics.CyclesCompleted.Inc()
	p.metrics.CycleDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)
	logger.Info("cycle complete", "storms", len(records), "duration", p.clock.Since(start))
	return nil
}

// detectAll runs the detector for every station with bounded concurrency.
func (p *Pipeline) detectAll(ctx context.Context, logger *slog.Logger, runID string, from, stop time.Time) []domain.StormRecord {
	results := make([][]domain.StormRecord, len(p.stations))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, st := range p.stations {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			p.metrics.StationsPolled.Inc()
			recs, err := p.detector.Detect(ctx, st, from, stop)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.metrics.StationErrors.WithLabelValues(string(st.Source)).Inc()
				logger.Warn("station skipped", "station", st.String(), "error", err)
				return nil
			}
			for j := range recs {
				recs[j].RunID = runID
			}
			p.metrics.StormsDetected.WithLabelValues(string(st.Source)).Add(float64(len(recs)))
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	var all []domain.StormRecord
	for _, recs := range results {
		all = append(all, recs...)
	}
	return all
}

// loadWithRetry writes records with exponential backoff between attempts.
func (p *Pipeline) loadWithRetry(ctx context.Context, logger *slog.Logger, records []domain.StormRecord) error {
	if len(records) == 0 {
		return nil
	}

	backoff := p.retryBackoff
	var err error
	for attempt := 1; attempt <= maxLoadAttempts; attempt++ {
		if err = p.loader.LoadBatch(ctx, records); err == nil {
			p.metrics.StormsLoaded.Add(float64(len(records)))
			return nil
		}
		p.metrics.LoadErrors.Inc()
		logger.Error("load batch failed", "error", err, "batch_size", len(records), "attempt", attempt)

		if attempt == maxLoadAttempts || !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxRetryBackoff)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("load %d storm records: %w", len(records), err)
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/metevents/internal/domain"
)

// StormDetector implements Detector by fetching accumulated precipitation and
// delineating storms in its increments.
type StormDetector struct {
	fetcher domain.PrecipFetcher
	params  domain.StormParams
	logger  *slog.Logger
}

// NewDetector creates a StormDetector with fixed detection parameters.
func NewDetector(fetcher domain.PrecipFetcher, params domain.StormParams, logger *slog.Logger) *StormDetector {
	return &StormDetector{fetcher: fetcher, params: params, logger: logger}
}

// Detect finds the storms in the station's data for [start, stop]. A storm
// whose start may lie before the window is left out.
func (d *StormDetector) Detect(ctx context.Context, station domain.Station, start, stop time.Time) ([]domain.StormRecord, error) {
	events, err := domain.StormEventsFromStation(ctx, d.fetcher, station, start, stop)
	if err != nil {
		return nil, err
	}
	if err := events.Find(d.params); err != nil {
		return nil, fmt.Errorf("find storms for %s: %w", station, err)
	}

	records := domain.NewStormRecords(station, events, d.params)
	if len(records) > 0 && !events.HeadSettled(d.params) {
		// The window cut into this storm; an earlier cycle stored it whole.
		d.logger.Debug("skipping storm truncated by window start",
			"station", station.String(), "start", records[0].Start)
		records = records[1:]
	}
	d.logger.Debug("storms detected", "station", station.String(), "storms", len(records), "samples", events.Data().Len())
	return records, nil
}

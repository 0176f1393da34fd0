package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSource is returned for an unknown station network.
var ErrInvalidSource = errors.New("invalid datasource")

// ErrNoData is returned when a station produced no samples for a window.
var ErrNoData = errors.New("no data")

// Source names a station network.
type Source string

const (
	SourceNRCS     Source = "NRCS"
	SourceCDEC     Source = "CDEC"
	SourceMesowest Source = "MESOWEST"
)

// Sources lists every supported station network.
func Sources() []Source {
	return []Source{SourceNRCS, SourceCDEC, SourceMesowest}
}

// ParseSource matches a network name case-insensitively.
func ParseSource(s string) (Source, error) {
	for _, src := range Sources() {
		if strings.EqualFold(string(src), strings.TrimSpace(s)) {
			return src, nil
		}
	}
	names := make([]string, 0, len(Sources()))
	for _, src := range Sources() {
		names = append(names, string(src))
	}
	return "", fmt.Errorf("%w %q: use %s", ErrInvalidSource, s, strings.Join(names, ", "))
}

// Station identifies a precipitation gauge within a network.
type Station struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name,omitempty" yaml:"name"`
	Source Source `json:"source" yaml:"source"`
}

func (s Station) String() string {
	return fmt.Sprintf("%s:%s", s.Source, s.ID)
}

// PrecipFetcher pulls daily accumulated precipitation for a station.
type PrecipFetcher interface {
	FetchAccumulatedPrecip(ctx context.Context, station Station, start, stop time.Time) (Series, error)
}

// StormEventsFromStation pulls accumulated precipitation for the window and
// differences it into per-step precipitation ready for Find.
func StormEventsFromStation(ctx context.Context, fetcher PrecipFetcher, station Station, start, stop time.Time) (*StormEvents, error) {
	accum, err := fetcher.FetchAccumulatedPrecip(ctx, station, start, stop)
	if err != nil {
		return nil, fmt.Errorf("fetch precip for %s: %w", station, err)
	}
	if accum.Len() == 0 {
		return nil, fmt.Errorf("pulling precip from %s during %s-%s: %w; check the station is real and has precip data between the dates",
			station, start.Format(time.DateOnly), stop.Format(time.DateOnly), ErrNoData)
	}
	return NewStormEvents(accum.Diff()), nil
}

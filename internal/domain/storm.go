package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidParams is returned when storm detection parameters are out of range.
var ErrInvalidParams = errors.New("invalid storm parameters")

// StormParams bound how storms are delineated.
type StormParams struct {
	// InstantMassToStart is the precipitation per step that begins a storm.
	InstantMassToStart float64
	// MinStormTotal is the accumulation required before a storm can close.
	MinStormTotal float64
	// HoursToStop is the dry gap that closes a storm. The gap must exceed it.
	HoursToStop time.Duration
	// MaxStormDuration closes a storm that has run longer than this.
	MaxStormDuration time.Duration
}

// DefaultStormParams returns thresholds tuned for daily station precipitation in inches.
func DefaultStormParams() StormParams {
	return StormParams{
		InstantMassToStart: 0.1,
		MinStormTotal:      0.5,
		HoursToStop:        24 * time.Hour,
		MaxStormDuration:   336 * time.Hour,
	}
}

// Validate rejects negative thresholds and non-positive durations.
func (p StormParams) Validate() error {
	switch {
	case p.InstantMassToStart < 0:
		return fmt.Errorf("%w: instant mass to start must not be negative", ErrInvalidParams)
	case p.MinStormTotal < 0:
		return fmt.Errorf("%w: minimum storm total must not be negative", ErrInvalidParams)
	case p.HoursToStop <= 0:
		return fmt.Errorf("%w: hours to stop must be positive", ErrInvalidParams)
	case p.MaxStormDuration <= 0:
		return fmt.Errorf("%w: maximum storm duration must be positive", ErrInvalidParams)
	}
	return nil
}

// StormEvents finds storms in an incremental precipitation series.
type StormEvents struct {
	data   Series
	events []CumulativePeriod
}

// NewStormEvents prepares storm detection over an incremental precipitation series.
func NewStormEvents(data Series) *StormEvents {
	return &StormEvents{data: data}
}

// Data is the incremental precipitation series storms are found in.
func (e *StormEvents) Data() Series {
	return e.data
}

// Events returns the storms found by the last call to Find.
func (e *StormEvents) Events() []CumulativePeriod {
	return e.events
}

// N is the number of storms found.
func (e *StormEvents) N() int {
	return len(e.events)
}

// HeadSettled reports whether the first storm's start is fixed by the data.
// It is not when the first wet step falls within HoursToStop of the first
// sample: the storm may have begun before the series did, so its Start (and
// the ID derived from it) would move as the series start moves.
func (e *StormEvents) HeadSettled(params StormParams) bool {
	cond := e.data.AtLeast(params.InstantMassToStart)
	for i, wet := range cond.Values {
		if wet {
			return cond.Times[i].Sub(cond.Times[0]) > params.HoursToStop
		}
	}
	return true
}

// Find delineates storms. Each wet run (steps >= InstantMassToStart) is
// merged into the running storm until the dry gap to the next run exceeds
// HoursToStop, or the storm outlasts MaxStormDuration, and the storm holds at
// least MinStormTotal. The last run always closes a storm. Calling Find again
// replaces earlier results.
func (e *StormEvents) Find(params StormParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	e.events = nil

	groups := GroupConditionByTime(e.data.AtLeast(params.InstantMassToStart))
	if len(groups) == 0 {
		return nil
	}

	times := e.data.Times
	start := groups[0].First

	for i, g := range groups {
		last := i == len(groups)-1

		nextStart := g.Last
		if !last {
			nextStart = groups[i+1].First
		}

		total := e.data.Slice(start, g.Last).Sum()
		duration := times[g.Last].Sub(times[start])

		enoughDry := times[nextStart].Sub(times[g.Last]) > params.HoursToStop
		tooLong := duration > params.MaxStormDuration
		enoughMass := total >= params.MinStormTotal

		if !((enoughDry || tooLong) && enoughMass) && !last {
			continue
		}

		// Precipitation reported at start fell during the preceding step.
		first := start
		if first > 0 {
			first--
		}

		period, err := NewCumulativePeriod(e.data.Slice(first, g.Last))
		if err != nil {
			return fmt.Errorf("build storm period: %w", err)
		}
		e.events = append(e.events, period)
		start = nextStart
	}
	return nil
}

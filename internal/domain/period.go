package domain

import (
	"fmt"
	"time"
)

// Period holds a slice of timeseries data that met some criteria.
type Period struct {
	data Series
}

// NewPeriod wraps a non-empty series.
func NewPeriod(data Series) (Period, error) {
	if data.Len() == 0 {
		return Period{}, fmt.Errorf("new period: %w", ErrEmptySeries)
	}
	return Period{data: data}, nil
}

// Start is the first timestamp of the period.
func (p Period) Start() time.Time {
	return p.data.Times[0]
}

// Stop is the last timestamp of the period.
func (p Period) Stop() time.Time {
	return p.data.Times[p.data.Len()-1]
}

// Duration is the time between Start and Stop.
func (p Period) Duration() time.Duration {
	return p.Stop().Sub(p.Start())
}

// Data is the series the period covers.
func (p Period) Data() Series {
	return p.data
}

// CumulativePeriod is a Period whose values add up to a meaningful total,
// such as incremental precipitation.
type CumulativePeriod struct {
	Period
}

// NewCumulativePeriod wraps a non-empty series.
func NewCumulativePeriod(data Series) (CumulativePeriod, error) {
	p, err := NewPeriod(data)
	if err != nil {
		return CumulativePeriod{}, err
	}
	return CumulativePeriod{Period: p}, nil
}

// Total sums the period, skipping missing values.
func (p CumulativePeriod) Total() float64 {
	return p.data.Sum()
}

func (p CumulativePeriod) String() string {
	return fmt.Sprintf("Cumulative Period (%s - %s)", p.Start().Format(time.RFC3339), p.Stop().Format(time.RFC3339))
}

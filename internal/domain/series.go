package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrEmptySeries is returned where at least one sample is required.
	ErrEmptySeries = errors.New("series has no samples")

	// ErrLengthMismatch is returned when times and values differ in length.
	ErrLengthMismatch = errors.New("times and values differ in length")

	// ErrUnsorted is returned when sample times are not strictly increasing.
	ErrUnsorted = errors.New("sample times must be strictly increasing")
)

// Series is a datetime-indexed sequence of float samples. Missing values are NaN.
type Series struct {
	Name   string      `json:"name,omitempty"`
	Times  []time.Time `json:"times"`
	Values []float64   `json:"values"`
}

// NewSeries builds a Series after checking that times and values line up and
// that times are strictly increasing.
func NewSeries(name string, times []time.Time, values []float64) (Series, error) {
	if len(times) != len(values) {
		return Series{}, fmt.Errorf("new series %q: %w (%d times, %d values)", name, ErrLengthMismatch, len(times), len(values))
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return Series{}, fmt.Errorf("new series %q: %w at position %d", name, ErrUnsorted, i)
		}
	}
	return Series{Name: name, Times: times, Values: values}, nil
}

// Len returns the number of samples.
func (s Series) Len() int {
	return len(s.Times)
}

// Slice returns samples i through j inclusive. The returned series shares
// storage with s.
func (s Series) Slice(i, j int) Series {
	if i < 0 {
		i = 0
	}
	if j >= s.Len() {
		j = s.Len() - 1
	}
	if i > j {
		return Series{Name: s.Name}
	}
	return Series{Name: s.Name, Times: s.Times[i : j+1], Values: s.Values[i : j+1]}
}

// Sum adds all non-NaN values. An empty or all-NaN series sums to zero.
func (s Series) Sum() float64 {
	var total float64
	for _, v := range s.Values {
		if math.IsNaN(v) {
			continue
		}
		total += v
	}
	return total
}

// Max returns the largest non-NaN value, or NaN if there is none.
func (s Series) Max() float64 {
	out := math.NaN()
	for _, v := range s.Values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(out) || v > out {
			out = v
		}
	}
	return out
}

// Cumsum returns the running total. NaN positions stay NaN and add nothing.
func (s Series) Cumsum() Series {
	out := make([]float64, len(s.Values))
	var running float64
	for i, v := range s.Values {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		running += v
		out[i] = running
	}
	return Series{Name: s.Name, Times: s.Times, Values: out}
}

// Diff returns the first difference. The first value is NaN, as is any
// difference involving a NaN sample.
func (s Series) Diff() Series {
	out := make([]float64, len(s.Values))
	for i := range s.Values {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = s.Values[i] - s.Values[i-1]
	}
	return Series{Name: s.Name, Times: s.Times, Values: out}
}

// AtLeast marks each sample whose value is >= threshold. NaN is never marked.
func (s Series) AtLeast(threshold float64) Condition {
	marks := make([]bool, len(s.Values))
	for i, v := range s.Values {
		marks[i] = v >= threshold
	}
	return Condition{Times: s.Times, Values: marks}
}

// Condition is a datetime-indexed boolean series.
type Condition struct {
	Times  []time.Time
	Values []bool
}

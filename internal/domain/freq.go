package domain

import "time"

// DetermineFreq infers the sampling interval of a time index. It compares the
// diffs between consecutive samples, leaving out the final interval, and
// reports the interval only when all of them agree. Fewer than three samples
// cannot be inferred.
func DetermineFreq(times []time.Time) (time.Duration, bool) {
	n := len(times)
	if n < 3 {
		return 0, false
	}

	step := times[1].Sub(times[0])
	for i := 2; i < n-1; i++ {
		if times[i].Sub(times[i-1]) != step {
			return 0, false
		}
	}
	return step, true
}

// FreqString returns the resolution code of an interval: the finest unit that
// holds a non-zero component. 24h is "D", 36h is "H", 90s is "S".
func FreqString(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	switch {
	case d%(24*time.Hour) == 0:
		return "D"
	case d%time.Hour == 0:
		return "H"
	case d%time.Minute == 0:
		return "T"
	case d%time.Second == 0:
		return "S"
	case d%time.Millisecond == 0:
		return "L"
	case d%time.Microsecond == 0:
		return "U"
	default:
		return "N"
	}
}

// Freq infers the sampling interval of the series.
func (s Series) Freq() (time.Duration, bool) {
	return DetermineFreq(s.Times)
}

package domain

import "time"

// Group is a run of consecutive true samples in a Condition. First and Last
// are inclusive sample positions.
type Group struct {
	First int
	Last  int
	Start time.Time
	Stop  time.Time
}

// TimeRange is a closed interval of time.
type TimeRange struct {
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`
}

// GroupConditionByTime splits a condition into runs of consecutive true
// samples, in time order.
func GroupConditionByTime(cond Condition) []Group {
	var groups []Group
	open := -1
	for i, v := range cond.Values {
		switch {
		case v && open < 0:
			open = i
		case !v && open >= 0:
			groups = append(groups, newGroup(cond, open, i-1))
			open = -1
		}
	}
	if open >= 0 {
		groups = append(groups, newGroup(cond, open, len(cond.Values)-1))
	}
	return groups
}

func newGroup(cond Condition, first, last int) Group {
	return Group{First: first, Last: last, Start: cond.Times[first], Stop: cond.Times[last]}
}

// StartStop returns the first and last timestamp of each run of true samples.
func StartStop(cond Condition) []TimeRange {
	groups := GroupConditionByTime(cond)
	out := make([]TimeRange, len(groups))
	for i, g := range groups {
		out[i] = TimeRange{Start: g.Start, Stop: g.Stop}
	}
	return out
}

package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStormID(t *testing.T) {
	id1 := StormID(SourceCDEC, "TUM", day(3))
	id2 := StormID(SourceCDEC, "TUM", day(3))
	assert.Equal(t, id1, id2)
	assert.True(t, strings.HasPrefix(id1, "storm-"))
	assert.Len(t, id1, len("storm-")+16)

	assert.NotEqual(t, id1, StormID(SourceNRCS, "TUM", day(3)))
	assert.NotEqual(t, id1, StormID(SourceCDEC, "TUM", day(4)))
}

func TestNewStormRecords(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2023, time.January, 10, 6, 0, 0, 0, time.UTC))
	SetClock(fakeClock)
	t.Cleanup(func() { SetClock(nil) })

	station := Station{ID: "TUM", Name: "Tuolumne Meadows", Source: SourceCDEC}
	storms := NewStormEvents(dailySeries(t, 0, 1, 2, 0, 0, 1, 0.5))
	params := DefaultStormParams()
	require.NoError(t, storms.Find(params))

	records := NewStormRecords(station, storms, params)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, StormID(SourceCDEC, "TUM", day(0)), first.ID)
	assert.Equal(t, "TUM", first.StationID)
	assert.Equal(t, "Tuolumne Meadows", first.StationName)
	assert.Equal(t, SourceCDEC, first.Source)
	assert.Equal(t, day(0), first.Start)
	assert.Equal(t, day(2), first.Stop)
	assert.Equal(t, 48*time.Hour, first.Duration)
	assert.InDelta(t, 3.0, first.Total, 1e-9)
	assert.InDelta(t, 2.0, first.Peak, 1e-9)
	assert.Equal(t, 3, first.Steps)
	assert.False(t, first.Ongoing)
	assert.Equal(t, fakeClock.Now(), first.DetectedAt)

	// The series ends on the storm's last wet step.
	assert.True(t, records[1].Ongoing)
}

func TestNewStormRecords_NoStorms(t *testing.T) {
	storms := NewStormEvents(dailySeries(t, 0, 0))
	require.NoError(t, storms.Find(DefaultStormParams()))
	assert.Nil(t, NewStormRecords(Station{ID: "X"}, storms, DefaultStormParams()))
}

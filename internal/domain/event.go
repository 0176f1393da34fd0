package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// StormRecord is the flattened, serializable form of a detected storm.
type StormRecord struct {
	ID          string        `json:"id"`
	StationID   string        `json:"station_id"`
	StationName string        `json:"station_name,omitempty"`
	Source      Source        `json:"source"`
	Start       time.Time     `json:"start"`
	Stop        time.Time     `json:"stop"`
	Duration    time.Duration `json:"duration_ns"`
	Total       float64       `json:"total"`
	Peak        float64       `json:"peak"`
	Steps       int           `json:"steps"`
	Ongoing     bool          `json:"ongoing"`
	DetectedAt  time.Time     `json:"detected_at"`
	RunID       string        `json:"run_id,omitempty"`
}

// StormID produces a deterministic ID from the storm's station and start.
// The stop time is left out so a storm that is still growing keeps its ID.
func StormID(source Source, stationID string, start time.Time) string {
	input := fmt.Sprintf("%s|%s|%s", source, stationID, start.UTC().Format(time.RFC3339))
	hash := sha256.Sum256([]byte(input))
	return "storm-" + hex.EncodeToString(hash[:8])
}

// NewStormRecords flattens the storms found for a station. A storm is ongoing
// when the series ends before its dry gap could exceed params.HoursToStop.
func NewStormRecords(station Station, events *StormEvents, params StormParams) []StormRecord {
	periods := events.Events()
	if len(periods) == 0 {
		return nil
	}

	data := events.Data()
	seriesEnd := data.Times[data.Len()-1]
	detectedAt := clock.Now().UTC()

	records := make([]StormRecord, 0, len(periods))
	for _, p := range periods {
		records = append(records, StormRecord{
			ID:          StormID(station.Source, station.ID, p.Start()),
			StationID:   station.ID,
			StationName: station.Name,
			Source:      station.Source,
			Start:       p.Start().UTC(),
			Stop:        p.Stop().UTC(),
			Duration:    p.Duration(),
			Total:       p.Total(),
			Peak:        p.Data().Max(),
			Steps:       p.Data().Len(),
			Ongoing:     seriesEnd.Sub(p.Stop()) <= params.HoursToStop,
			DetectedAt:  detectedAt,
		})
	}
	return records
}

package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/metevents/internal/domain"
)

// Format selects the storm output encoding.
type Format string

const (
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatTable, FormatJSON, FormatCSV, FormatParquet:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q: use table, json, csv or parquet", s)
}

var csvHeader = []string{
	"id", "station_id", "source", "start", "stop", "duration_hours",
	"total", "peak", "steps", "ongoing",
}

// stormRow is the flat parquet schema of a storm record.
type stormRow struct {
	ID            string  `parquet:"id"`
	StationID     string  `parquet:"station_id"`
	StationName   string  `parquet:"station_name"`
	Source        string  `parquet:"source"`
	Start         int64   `parquet:"start_ms"`
	Stop          int64   `parquet:"stop_ms"`
	DurationHours float64 `parquet:"duration_hours"`
	Total         float64 `parquet:"total"`
	Peak          float64 `parquet:"peak"`
	Steps         int32   `parquet:"steps"`
	Ongoing       bool    `parquet:"ongoing"`
	DetectedAt    int64   `parquet:"detected_at_ms"`
	RunID         string  `parquet:"run_id"`
}

func newStormRow(r domain.StormRecord) stormRow {
	return stormRow{
		ID:            r.ID,
		StationID:     r.StationID,
		StationName:   r.StationName,
		Source:        string(r.Source),
		Start:         r.Start.UTC().UnixMilli(),
		Stop:          r.Stop.UTC().UnixMilli(),
		DurationHours: r.Duration.Hours(),
		Total:         r.Total,
		Peak:          r.Peak,
		Steps:         int32(r.Steps),
		Ongoing:       r.Ongoing,
		DetectedAt:    r.DetectedAt.UTC().UnixMilli(),
		RunID:         r.RunID,
	}
}

// WriteStorms encodes records to w in the given format.
func WriteStorms(w io.Writer, format Format, records []domain.StormRecord) error {
	switch format {
	case FormatTable:
		return writeTable(w, records)
	case FormatJSON:
		return writeJSON(w, records)
	case FormatCSV:
		return writeCSV(w, records)
	case FormatParquet:
		return writeParquet(w, records)
	}
	return fmt.Errorf("unknown format %q", format)
}

func writeTable(w io.Writer, records []domain.StormRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no storms found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tSTOP\tHOURS\tTOTAL\tPEAK\tSTEPS\tONGOING")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.2f\t%.2f\t%d\t%t\n",
			r.Start.Format(time.RFC3339), r.Stop.Format(time.RFC3339),
			r.Duration.Hours(), r.Total, r.Peak, r.Steps, r.Ongoing)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, records []domain.StormRecord) error {
	if records == nil {
		records = []domain.StormRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode storms json: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, records []domain.StormRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.StationID,
			string(r.Source),
			r.Start.UTC().Format(time.RFC3339),
			r.Stop.UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.Duration.Hours(), 'f', -1, 64),
			strconv.FormatFloat(r.Total, 'f', -1, 64),
			strconv.FormatFloat(r.Peak, 'f', -1, 64),
			strconv.Itoa(r.Steps),
			strconv.FormatBool(r.Ongoing),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeParquet(w io.Writer, records []domain.StormRecord) error {
	rows := make([]stormRow, len(records))
	for i, r := range records {
		rows[i] = newStormRow(r)
	}

	pw := parquet.NewGenericWriter[stormRow](w)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

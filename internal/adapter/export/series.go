// Package export reads precipitation series from files and writes storm
// records in tabular formats.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/pgzip"

	"github.com/couchcryptid/metevents/internal/domain"
)

// timeLayouts are tried in order when parsing the time column.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
}

// ReadSeriesCSV loads a series from a CSV file with a header row. Paths ending
// in .gz are decompressed on the fly.
func ReadSeriesCSV(path, timeCol, valueCol string) (domain.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Series{}, fmt.Errorf("open series file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReaderN(f, 256*1024, runtime.NumCPU())
		if err != nil {
			return domain.Series{}, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return ReadSeries(r, timeCol, valueCol)
}

// ReadSeries parses CSV rows into a series named after valueCol. Blank, "NaN"
// and "NA" values are missing samples. Rows must be in time order.
func ReadSeries(r io.Reader, timeCol, valueCol string) (domain.Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.Series{}, domain.ErrEmptySeries
	}
	if err != nil {
		return domain.Series{}, fmt.Errorf("read csv header: %w", err)
	}
	ti, vi := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case timeCol:
			ti = i
		case valueCol:
			vi = i
		}
	}
	if ti < 0 {
		return domain.Series{}, fmt.Errorf("time column %q not found", timeCol)
	}
	if vi < 0 {
		return domain.Series{}, fmt.Errorf("value column %q not found", valueCol)
	}

	var (
		times  []time.Time
		values []float64
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Series{}, fmt.Errorf("read csv line %d: %w", line, err)
		}
		ts, err := parseTime(rec[ti])
		if err != nil {
			return domain.Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		v, err := parseValue(rec[vi])
		if err != nil {
			return domain.Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		times = append(times, ts)
		values = append(values, v)
	}
	if len(times) == 0 {
		return domain.Series{}, domain.ErrEmptySeries
	}
	return domain.NewSeries(valueCol, times, values)
}

// WriteSeriesCSV writes s with a header row. Paths ending in .gz are
// compressed. Missing samples are written as empty cells.
func WriteSeriesCSV(path, timeCol, valueCol string, s domain.Series) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create series file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close series file: %w", cerr)
		}
	}()

	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		gz := pgzip.NewWriter(f)
		defer func() {
			if cerr := gz.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close gzip stream: %w", cerr)
			}
		}()
		w = gz
	}
	return WriteSeries(w, timeCol, valueCol, s)
}

// WriteSeries writes s as two-column CSV.
func WriteSeries(w io.Writer, timeCol, valueCol string, s domain.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{timeCol, valueCol}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, t := range s.Times {
		v := ""
		if !math.IsNaN(s.Values[i]) {
			v = strconv.FormatFloat(s.Values[i], 'f', -1, 64)
		}
		if err := cw.Write([]string{t.UTC().Format(time.RFC3339), v}); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return v, nil
}

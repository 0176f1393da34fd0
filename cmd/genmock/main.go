// Command genmock generates a synthetic accumulated-precipitation series and
// the storms the detector finds in it. It runs the real domain package so the
// expected storms fixture always matches pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -series-out testdata/precip.csv.gz \
//	  -storms-out testdata/precip_storms.json \
//	  -days 120 -seed 7
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/metevents/internal/adapter/export"
	"github.com/couchcryptid/metevents/internal/domain"
)

var baseDate = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

// genOptions shapes the synthetic season.
type genOptions struct {
	Days     int
	Seed     uint64
	WetProb  float64 // chance a dry day starts a storm
	StayProb float64 // chance a wet day is followed by another
	GapProb  float64 // chance a reading is missing
}

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("genmock", flag.ContinueOnError)
	fs.SetOutput(stderr)
	seriesOut := fs.String("series-out", "", "output path for the accumulated series CSV (.gz to compress)")
	stormsOut := fs.String("storms-out", "", "output path for the expected storms JSON")
	days := fs.Int("days", 120, "number of daily samples")
	seed := fs.Uint64("seed", 1, "random seed")
	wet := fs.Float64("wet-prob", 0.12, "probability a dry day starts a storm")
	stay := fs.Float64("stay-prob", 0.6, "probability a wet day continues")
	gap := fs.Float64("gap-prob", 0.02, "probability a reading is missing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *seriesOut == "" || *stormsOut == "" {
		fs.Usage()
		return fmt.Errorf("missing required flags: -series-out, -storms-out")
	}
	if *days < 3 {
		return fmt.Errorf("invalid -days %d: need at least 3", *days)
	}

	logger := log.New(stderr, "", log.LstdFlags)

	accum := generate(genOptions{Days: *days, Seed: *seed, WetProb: *wet, StayProb: *stay, GapProb: *gap})

	// Fixed clock for reproducible DetectedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(accum.Times[accum.Len()-1].Add(6 * time.Hour)))
	defer domain.SetClock(nil)

	params := domain.DefaultStormParams()
	events := domain.NewStormEvents(accum.Diff())
	if err := events.Find(params); err != nil {
		return fmt.Errorf("find storms: %w", err)
	}
	station := domain.Station{ID: "SYNTH", Name: "Synthetic gauge"}
	records := domain.NewStormRecords(station, events, params)

	if err := export.WriteSeriesCSV(*seriesOut, "datetime", "precip", accum); err != nil {
		return fmt.Errorf("writing series fixture: %w", err)
	}
	logger.Printf("wrote series fixture: %s (%d samples)", *seriesOut, accum.Len())

	if err := writeStorms(*stormsOut, records); err != nil {
		return fmt.Errorf("writing storms fixture: %w", err)
	}
	logger.Printf("wrote storms fixture: %s", *stormsOut)

	printStats(logger, records)
	return nil
}

// generate builds a monotonically non-decreasing daily accumulation driven by
// a two-state wet/dry chain. The same options always yield the same series.
func generate(opts genOptions) domain.Series {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	times := make([]time.Time, opts.Days)
	values := make([]float64, opts.Days)

	var total float64
	wet := false
	for i := range opts.Days {
		times[i] = baseDate.AddDate(0, 0, i)

		if wet {
			wet = rng.Float64() < opts.StayProb
		} else {
			wet = rng.Float64() < opts.WetProb
		}
		if wet {
			// Exponential daily depths with a mean of 0.4 in.
			total += math.Round(rng.ExpFloat64()*0.4*100) / 100
		} else if rng.Float64() < 0.1 {
			total += 0.01
		}

		values[i] = total
		if i > 0 && i < opts.Days-1 && rng.Float64() < opts.GapProb {
			values[i] = math.NaN()
		}
	}
	return domain.Series{Name: "precip_accum", Times: times, Values: values}
}

func writeStorms(path string, records []domain.StormRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteStorms(f, export.FormatJSON, records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printStats(logger *log.Logger, records []domain.StormRecord) {
	var total float64
	var ongoing int
	for _, r := range records {
		total += r.Total
		if r.Ongoing {
			ongoing++
		}
	}
	logger.Printf("storms: %d (ongoing %d), total precip %.2f", len(records), ongoing, total)
}

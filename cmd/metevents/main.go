// Command metevents finds storms in station or CSV precipitation data.
//
// Usage:
//
//	metevents find -source CDEC -station TUM -start 2023-01-01 -end 2023-06-01
//	metevents find -csv precip.csv.gz -time-col datetime -value-col precip -accumulated -format json
//	metevents freq -csv precip.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/couchcryptid/metevents/internal/adapter/export"
	"github.com/couchcryptid/metevents/internal/adapter/station"
	"github.com/couchcryptid/metevents/internal/config"
	"github.com/couchcryptid/metevents/internal/domain"
	"github.com/couchcryptid/metevents/internal/observability"
)

const usage = `usage: metevents <command> [flags]

commands:
  find   delineate storms from a station or a CSV file
  freq   print the sampling frequency of a CSV series
`

// errUsage marks errors that should be followed by usage text.
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "metevents: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: missing command", errUsage)
	}
	switch args[0] {
	case "find":
		return runFind(ctx, args[1:], stdout, stderr)
	case "freq":
		return runFreq(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	fmt.Fprint(stderr, usage)
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

type findFlags struct {
	source      string
	stationID   string
	start, end  string
	token       string
	baseURL     string
	timeout     time.Duration
	csvPath     string
	timeCol     string
	valueCol    string
	accumulated bool
	params      domain.StormParams
	format      string
	out         string
	logLevel    string
}

func runFind(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var f findFlags
	defaults := domain.DefaultStormParams()

	fs := flag.NewFlagSet("find", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.source, "source", "", "station network: NRCS, CDEC or MESOWEST")
	fs.StringVar(&f.stationID, "station", "", "station ID, e.g. TUM or 538:CO:SNTL")
	fs.StringVar(&f.start, "start", "", "first day to pull (YYYY-MM-DD)")
	fs.StringVar(&f.end, "end", "", "last day to pull (YYYY-MM-DD)")
	fs.StringVar(&f.token, "token", os.Getenv("MESOWEST_TOKEN"), "Synoptic API token for MESOWEST stations")
	fs.StringVar(&f.baseURL, "base-url", "", "override the station network endpoint")
	fs.DurationVar(&f.timeout, "timeout", 30*time.Second, "station request timeout")
	fs.StringVar(&f.csvPath, "csv", "", "read the series from a CSV file (.gz allowed) instead of a station")
	fs.StringVar(&f.timeCol, "time-col", "datetime", "CSV time column")
	fs.StringVar(&f.valueCol, "value-col", "precip", "CSV value column")
	fs.BoolVar(&f.accumulated, "accumulated", false, "CSV values are accumulated and must be differenced")
	fs.Float64Var(&f.params.InstantMassToStart, "instant-mass", defaults.InstantMassToStart, "precipitation per step that starts a storm")
	fs.Float64Var(&f.params.MinStormTotal, "min-total", defaults.MinStormTotal, "minimum storm total")
	fs.DurationVar(&f.params.HoursToStop, "hours-to-stop", defaults.HoursToStop, "dry gap that ends a storm")
	fs.DurationVar(&f.params.MaxStormDuration, "max-duration", defaults.MaxStormDuration, "longest storm before it is split")
	fs.StringVar(&f.format, "format", string(export.FormatTable), "output format: table, json, csv or parquet")
	fs.StringVar(&f.out, "out", "", "write output to this file instead of stdout")
	fs.StringVar(&f.logLevel, "log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	format, err := export.ParseFormat(f.format)
	if err != nil {
		return err
	}
	if err := f.params.Validate(); err != nil {
		return err
	}

	logger := newLogger(stderr, f.logLevel)

	st, events, err := loadEvents(ctx, f, logger)
	if err != nil {
		return err
	}
	if err := events.Find(f.params); err != nil {
		return err
	}
	records := domain.NewStormRecords(st, events, f.params)
	logger.Info("storms found", "station", st.String(), "storms", len(records))

	return writeOutput(stdout, f.out, format, records)
}

// loadEvents prepares storm detection from either a CSV file or a station.
func loadEvents(ctx context.Context, f findFlags, logger *slog.Logger) (domain.Station, *domain.StormEvents, error) {
	if f.csvPath != "" {
		s, err := export.ReadSeriesCSV(f.csvPath, f.timeCol, f.valueCol)
		if err != nil {
			return domain.Station{}, nil, err
		}
		if f.accumulated {
			s = s.Diff()
		}
		return domain.Station{ID: filepath.Base(f.csvPath)}, domain.NewStormEvents(s), nil
	}

	if f.source == "" || f.stationID == "" || f.start == "" || f.end == "" {
		return domain.Station{}, nil, fmt.Errorf("%w: find needs -csv or all of -source, -station, -start and -end", errUsage)
	}
	src, err := domain.ParseSource(f.source)
	if err != nil {
		return domain.Station{}, nil, err
	}
	start, err := time.Parse(time.DateOnly, f.start)
	if err != nil {
		return domain.Station{}, nil, fmt.Errorf("invalid -start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, f.end)
	if err != nil {
		return domain.Station{}, nil, fmt.Errorf("invalid -end: %w", err)
	}
	if end.Before(start) {
		return domain.Station{}, nil, fmt.Errorf("-end %s is before -start %s", f.end, f.start)
	}

	st := domain.Station{ID: f.stationID, Source: src}
	events, err := domain.StormEventsFromStation(ctx, newFetcher(src, f, logger), st, start, end)
	if err != nil {
		return domain.Station{}, nil, err
	}
	return st, events, nil
}

func newFetcher(src domain.Source, f findFlags, logger *slog.Logger) domain.PrecipFetcher {
	baseURL := f.baseURL
	if baseURL == "" {
		switch src {
		case domain.SourceNRCS:
			baseURL = config.DefaultNRCSBaseURL
		case domain.SourceCDEC:
			baseURL = config.DefaultCDECBaseURL
		case domain.SourceMesowest:
			baseURL = config.DefaultMesowestBaseURL
		}
	}
	opts := station.Options{
		BaseURL: baseURL,
		Timeout: f.timeout,
		Metrics: observability.NewMetricsWith(prometheus.NewRegistry()),
		Logger:  logger,
	}

	r := station.NewRegistry()
	switch src {
	case domain.SourceNRCS:
		r.Register(src, station.NewNRCSClient(opts))
	case domain.SourceCDEC:
		r.Register(src, station.NewCDECClient(opts))
	case domain.SourceMesowest:
		r.Register(src, station.NewMesowestClient(f.token, opts))
	}
	return r
}

func runFreq(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("freq", flag.ContinueOnError)
	fs.SetOutput(stderr)
	csvPath := fs.String("csv", "", "CSV file (.gz allowed)")
	timeCol := fs.String("time-col", "datetime", "CSV time column")
	valueCol := fs.String("value-col", "precip", "CSV value column")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *csvPath == "" {
		return fmt.Errorf("%w: freq needs -csv", errUsage)
	}

	s, err := export.ReadSeriesCSV(*csvPath, *timeCol, *valueCol)
	if err != nil {
		return err
	}
	d, ok := s.Freq()
	if !ok {
		return errors.New("cannot infer a regular sampling frequency")
	}
	_, err = fmt.Fprintf(stdout, "%s\t%s\n", domain.FreqString(d), d)
	return err
}

func writeOutput(stdout io.Writer, path string, format export.Format, records []domain.StormRecord) error {
	if path == "" {
		return export.WriteStorms(stdout, format, records)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := export.WriteStorms(f, format, records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// newLogger logs to stderr so stdout carries only command output.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

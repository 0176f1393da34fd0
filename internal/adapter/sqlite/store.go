// Package sqlite persists storm records in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/metevents/internal/adapter/sqlite/migrations"
	"github.com/couchcryptid/metevents/internal/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Store keeps storm records keyed by storm ID.
type Store struct {
	db *sql.DB
}

// StormFilter narrows ListStorms. Zero fields match everything.
type StormFilter struct {
	StationID string
	Source    domain.Source
	Since     time.Time // storms starting at or after Since
	Limit     int
}

// StationSummary aggregates the stored storms of one station.
type StationSummary struct {
	StationID   string        `json:"station_id"`
	StationName string        `json:"station_name,omitempty"`
	Source      domain.Source `json:"source"`
	StormCount  int           `json:"storm_count"`
	LatestStart time.Time     `json:"latest_start"`
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// Open opens the SQLite database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadBatch upserts records by ID in a single transaction. A storm that grew
// since the last cycle replaces its earlier row.
func (s *Store) LoadBatch(ctx context.Context, records []domain.StormRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin storm upsert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO storms (
    id, station_id, station_name, source, start_ms, stop_ms, duration_ns,
    total, peak, steps, ongoing, detected_at_ms, run_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    station_name = excluded.station_name,
    stop_ms = excluded.stop_ms,
    duration_ns = excluded.duration_ns,
    total = excluded.total,
    peak = excluded.peak,
    steps = excluded.steps,
    ongoing = excluded.ongoing,
    detected_at_ms = excluded.detected_at_ms,
    run_id = excluded.run_id`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare storm upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.StationID, r.StationName, string(r.Source),
			toMillis(r.Start), toMillis(r.Stop), int64(r.Duration),
			r.Total, nullFloat(r.Peak), r.Steps, r.Ongoing,
			toMillis(r.DetectedAt), r.RunID,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert storm %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit storm upsert: %w", err)
	}
	return nil
}

// ListStorms returns stored storms matching f, newest start first.
func (s *Store) ListStorms(ctx context.Context, f StormFilter) ([]domain.StormRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.StationID != "" {
		where = append(where, "station_id = ?")
		args = append(args, f.StationID)
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(f.Source))
	}
	if !f.Since.IsZero() {
		where = append(where, "start_ms >= ?")
		args = append(args, toMillis(f.Since))
	}

	query := `SELECT id, station_id, station_name, source, start_ms, stop_ms, duration_ns,
    total, peak, steps, ongoing, detected_at_ms, run_id FROM storms`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_ms DESC, id LIMIT ?"
	args = append(args, clampLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list storms: %w", err)
	}
	defer rows.Close()

	var out []domain.StormRecord
	for rows.Next() {
		var (
			r                           domain.StormRecord
			source                      string
			startMs, stopMs, detectedMs int64
			durationNs                  int64
			peak                        sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.StationID, &r.StationName, &source, &startMs, &stopMs, &durationNs,
			&r.Total, &peak, &r.Steps, &r.Ongoing, &detectedMs, &r.RunID); err != nil {
			return nil, fmt.Errorf("scan storm: %w", err)
		}
		r.Source = domain.Source(source)
		r.Start = fromMillis(startMs)
		r.Stop = fromMillis(stopMs)
		r.Duration = time.Duration(durationNs)
		r.DetectedAt = fromMillis(detectedMs)
		r.Peak = peak.Float64 // zero when NULL, keeping records JSON-encodable
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate storms: %w", err)
	}
	return out, nil
}

// StationSummaries returns one row per station with stored storms.
func (s *Store) StationSummaries(ctx context.Context) ([]StationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT source, station_id, MAX(station_name), COUNT(*), MAX(start_ms)
FROM storms
GROUP BY source, station_id
ORDER BY source, station_id`)
	if err != nil {
		return nil, fmt.Errorf("summarize stations: %w", err)
	}
	defer rows.Close()

	var out []StationSummary
	for rows.Next() {
		var (
			sum      StationSummary
			source   string
			latestMs int64
		)
		if err := rows.Scan(&source, &sum.StationID, &sum.StationName, &sum.StormCount, &latestMs); err != nil {
			return nil, fmt.Errorf("scan station summary: %w", err)
		}
		sum.Source = domain.Source(source)
		sum.LatestStart = fromMillis(latestMs)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate station summaries: %w", err)
	}
	return out, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	default:
		return n
	}
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

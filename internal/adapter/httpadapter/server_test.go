package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/metevents/internal/adapter/httpadapter"
	"github.com/couchcryptid/metevents/internal/adapter/sqlite"
	"github.com/couchcryptid/metevents/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockStore struct {
	storms     []domain.StormRecord
	summaries  []sqlite.StationSummary
	err        error
	lastFilter sqlite.StormFilter
}

func (m *mockStore) ListStorms(_ context.Context, f sqlite.StormFilter) ([]domain.StormRecord, error) {
	m.lastFilter = f
	return m.storms, m.err
}

func (m *mockStore) StationSummaries(context.Context) ([]sqlite.StationSummary, error) {
	return m.summaries, m.err
}

var (
	tum       = domain.Station{ID: "TUM", Name: "Tuolumne Meadows", Source: domain.SourceCDEC}
	stormDate = time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(readyErr error, store *mockStore) *httpadapter.Server {
	opts := httpadapter.Options{Addr: ":0", Stations: []domain.Station{tum}}
	return httpadapter.NewServer(opts, &mockReadiness{err: readyErr}, store, discardLogger())
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockStore{}), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockStore{}), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(fmt.Errorf("not ready yet"), &mockStore{}), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockStore{}), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStorms_ListsWithFilter(t *testing.T) {
	store := &mockStore{storms: []domain.StormRecord{{
		ID:        domain.StormID(domain.SourceCDEC, "TUM", stormDate),
		StationID: "TUM",
		Source:    domain.SourceCDEC,
		Start:     stormDate,
		Stop:      stormDate.Add(48 * time.Hour),
		Total:     2.1,
	}}}
	rec := get(t, newTestServer(nil, store), "/api/v1/storms?station=TUM&source=cdec&since=2023-01-01&limit=5")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sqlite.StormFilter{
		StationID: "TUM",
		Source:    domain.SourceCDEC,
		Since:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Limit:     5,
	}, store.lastFilter)

	var body struct {
		Storms []domain.StormRecord `json:"storms"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.InDelta(t, 2.1, body.Storms[0].Total, 1e-9)
}

func TestStorms_EmptyIsArray(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockStore{}), "/api/v1/storms")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"storms":[],"count":0}`, rec.Body.String())
}

func TestStorms_BadRequests(t *testing.T) {
	srv := newTestServer(nil, &mockStore{})
	tests := []struct {
		name    string
		query   string
		wantErr string
	}{
		{"unknown source", "source=noaa", "invalid datasource"},
		{"bad since", "since=yesterday", "invalid since"},
		{"bad limit", "limit=-3", "invalid limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, srv, "/api/v1/storms?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.wantErr)
		})
	}
}

func TestStorms_StoreError(t *testing.T) {
	rec := get(t, newTestServer(nil, &mockStore{err: errors.New("db locked")}), "/api/v1/storms")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db locked")
}

func TestStations_MergesConfiguredAndStored(t *testing.T) {
	store := &mockStore{summaries: []sqlite.StationSummary{
		{StationID: "TUM", Source: domain.SourceCDEC, StormCount: 4, LatestStart: stormDate},
		{StationID: "538:CO:SNTL", Source: domain.SourceNRCS, StormCount: 1, LatestStart: stormDate},
	}}
	rec := get(t, newTestServer(nil, store), "/api/v1/stations")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []struct {
		StationID   string     `json:"station_id"`
		StationName string     `json:"station_name"`
		Source      string     `json:"source"`
		Configured  bool       `json:"configured"`
		StormCount  int        `json:"storm_count"`
		LatestStart *time.Time `json:"latest_start"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)

	assert.Equal(t, "TUM", body[0].StationID)
	assert.Equal(t, "Tuolumne Meadows", body[0].StationName)
	assert.True(t, body[0].Configured)
	assert.Equal(t, 4, body[0].StormCount)
	require.NotNil(t, body[0].LatestStart)
	assert.True(t, stormDate.Equal(*body[0].LatestStart))

	assert.Equal(t, "538:CO:SNTL", body[1].StationID)
	assert.False(t, body[1].Configured)
}

func TestAPI_RateLimited(t *testing.T) {
	opts := httpadapter.Options{Addr: ":0", RateLimit: 2}
	srv := httpadapter.NewServer(opts, &mockReadiness{}, &mockStore{}, discardLogger())

	for range 2 {
		assert.Equal(t, http.StatusOK, get(t, srv, "/api/v1/storms").Code)
	}
	rec := get(t, srv, "/api/v1/storms")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Health endpoints are not limited.
	assert.Equal(t, http.StatusOK, get(t, srv, "/healthz").Code)
}

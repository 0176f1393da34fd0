package station

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/metevents/internal/domain"
	"github.com/couchcryptid/metevents/internal/observability"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

var (
	testStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	testStop  = time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
)

func testOptions(baseURL string, m *observability.Metrics) Options {
	return Options{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
		Metrics: m,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func jsonServer(t *testing.T, check func(r *http.Request), body any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func day(n int) time.Time { return testStart.AddDate(0, 0, n) }

func ptr(v float64) *float64 { return &v }

func TestNRCSClient_Success(t *testing.T) {
	resp := []awdbStation{{
		StationTriplet: "538:CO:SNTL",
		Data: []awdbData{{
			Values: []awdbValue{
				{Date: "2023-01-02", Value: ptr(10.4)},
				{Date: "2023-01-01", Value: ptr(10.1)},
				{Date: "2023-01-03"},
			},
		}},
	}}
	resp[0].Data[0].StationElement.ElementCode = "PREC"

	srv := jsonServer(t, func(r *http.Request) {
		assert.Equal(t, "/data", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "538:CO:SNTL", q.Get("stationTriplets"))
		assert.Equal(t, "PREC", q.Get("elements"))
		assert.Equal(t, "DAILY", q.Get("duration"))
		assert.Equal(t, "2023-01-01", q.Get("beginDate"))
		assert.Equal(t, "2023-01-05", q.Get("endDate"))
	}, resp)

	m := observability.NewMetricsForTesting()
	c := NewNRCSClient(testOptions(srv.URL, m))
	st := domain.Station{ID: "538:CO:SNTL", Source: domain.SourceNRCS}

	s, err := c.FetchAccumulatedPrecip(context.Background(), st, testStart, testStop)
	require.NoError(t, err)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, []time.Time{day(0), day(1), day(2)}, s.Times)
	assert.InDelta(t, 10.1, s.Values[0], 1e-9)
	assert.InDelta(t, 10.4, s.Values[1], 1e-9)
	assert.True(t, math.IsNaN(s.Values[2]))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.FetchRequests.WithLabelValues("NRCS", "success")), 1e-9)
}

func TestNRCSClient_SkipsOtherElements(t *testing.T) {
	resp := []awdbStation{{Data: []awdbData{{Values: []awdbValue{{Date: "2023-01-01", Value: ptr(3)}}}}}}
	resp[0].Data[0].StationElement.ElementCode = "WTEQ"
	srv := jsonServer(t, nil, resp)

	m := observability.NewMetricsForTesting()
	c := NewNRCSClient(testOptions(srv.URL, m))
	s, err := c.FetchAccumulatedPrecip(context.Background(), domain.Station{ID: "1", Source: domain.SourceNRCS}, testStart, testStop)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.FetchRequests.WithLabelValues("NRCS", "empty")), 1e-9)
}

func TestCDECClient_Success(t *testing.T) {
	resp := []cdecReading{
		{StationID: "TUM", SensorNum: 2, Date: "2023-1-1 00:00", Value: ptr(20.5)},
		{StationID: "TUM", SensorNum: 2, Date: "2023-1-2 00:00", Value: ptr(cdecMissing)},
		{StationID: "TUM", SensorNum: 2, Date: "2023-1-3 00:00", Value: ptr(21.5)},
	}
	srv := jsonServer(t, func(r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "TUM", q.Get("Stations"))
		assert.Equal(t, "2", q.Get("SensorNums"))
		assert.Equal(t, "D", q.Get("dur_code"))
		assert.Equal(t, "2023-01-01", q.Get("Start"))
	}, resp)

	c := NewCDECClient(testOptions(srv.URL, observability.NewMetricsForTesting()))
	s, err := c.FetchAccumulatedPrecip(context.Background(), domain.Station{ID: "TUM", Source: domain.SourceCDEC}, testStart, testStop)
	require.NoError(t, err)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, day(2), s.Times[2])
	assert.InDelta(t, 20.5, s.Values[0], 1e-9)
	assert.True(t, math.IsNaN(s.Values[1]))
	assert.InDelta(t, 21.5, s.Values[2], 1e-9)
}

func TestCDECClient_BadDate(t *testing.T) {
	srv := jsonServer(t, nil, []cdecReading{{Date: "yesterday", Value: ptr(1)}})
	c := NewCDECClient(testOptions(srv.URL, observability.NewMetricsForTesting()))
	_, err := c.FetchAccumulatedPrecip(context.Background(), domain.Station{ID: "TUM", Source: domain.SourceCDEC}, testStart, testStop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse CDEC date")
}

func TestMesowestClient_KeepsLastReadingPerDay(t *testing.T) {
	body := map[string]any{
		"SUMMARY": map[string]any{"RESPONSE_CODE": 1, "RESPONSE_MESSAGE": "OK"},
		"STATION": []any{map[string]any{
			"STID": "KSLC",
			"OBSERVATIONS": map[string]any{
				"date_time": []string{
					"2023-01-01T06:00:00Z",
					"2023-01-01T18:00:00Z",
					"2023-01-02T12:00:00Z",
					"2023-01-02T23:00:00Z",
				},
				"precip_accum_set_1": []any{1.0, 1.25, 1.5, nil},
			},
		}},
	}
	srv := jsonServer(t, func(r *http.Request) {
		assert.Equal(t, "/stations/timeseries", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "KSLC", q.Get("stid"))
		assert.Equal(t, "precip_accum", q.Get("vars"))
		assert.Equal(t, "english", q.Get("units"))
		assert.Equal(t, "202301010000", q.Get("start"))
		assert.Equal(t, testToken, q.Get("token"))
	}, body)

	c := NewMesowestClient(testToken, testOptions(srv.URL, observability.NewMetricsForTesting()))
	s, err := c.FetchAccumulatedPrecip(context.Background(), domain.Station{ID: "KSLC", Source: domain.SourceMesowest}, testStart, testStop)
	require.NoError(t, err)

	require.Equal(t, 2, s.Len())
	assert.Equal(t, []time.Time{day(0), day(1)}, s.Times)
	assert.InDelta(t, 1.25, s.Values[0], 1e-9)
	// A trailing null does not overwrite the day's last real reading.
	assert.InDelta(t, 1.5, s.Values[1], 1e-9)
}

func TestMesowestClient_APIErrorCode(t *testing.T) {
	body := map[string]any{
		"SUMMARY": map[string]any{"RESPONSE_CODE": 2, "RESPONSE_MESSAGE": "Invalid token"},
	}
	srv := jsonServer(t, nil, body)
	m := observability.NewMetricsForTesting()
	c := NewMesowestClient(testToken, testOptions(srv.URL, m))

	_, err := c.FetchAccumulatedPrecip(context.Background(), domain.Station{ID: "KSLC", Source: domain.SourceMesowest}, testStart, testStop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid token")
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.FetchRequests.WithLabelValues("MESOWEST", "error")), 1e-9)
}

func TestMesowestClient_RequiresToken(t *testing.T) {
	c := NewMesowestClient("", testOptions("http://unused", observability.NewMetricsForTesting()))
	_, err := c.FetchAccumulatedPrecip(context.Background(), domain.Station{ID: "KSLC", Source: domain.SourceMesowest}, testStart, testStop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is required")
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`maintenance`))
	}))
	defer srv.Close()

	m := observability.NewMetricsForTesting()
	c := NewCDECClient(testOptions(srv.URL, m))
	_, err := c.FetchAccumulatedPrecip(context.Background(), domain.Station{ID: "TUM", Source: domain.SourceCDEC}, testStart, testStop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "maintenance")
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.FetchRequests.WithLabelValues("CDEC", "error")), 1e-9)
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	opts := testOptions(srv.URL, observability.NewMetricsForTesting())
	opts.Timeout = 50 * time.Millisecond
	c := NewNRCSClient(opts)
	_, err := c.FetchAccumulatedPrecip(context.Background(), domain.Station{ID: "1", Source: domain.SourceNRCS}, testStart, testStop)
	require.Error(t, err)
}

func TestClient_CanceledContext(t *testing.T) {
	opts := testOptions("http://unused", observability.NewMetricsForTesting())
	opts.RateLimit = 0.001
	c := NewCDECClient(opts)
	// Drain the single burst token so the next call has to wait.
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchAccumulatedPrecip(ctx, domain.Station{ID: "TUM", Source: domain.SourceCDEC}, testStart, testStop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

type fakeFetcher struct {
	calls int
}

func (f *fakeFetcher) FetchAccumulatedPrecip(context.Context, domain.Station, time.Time, time.Time) (domain.Series, error) {
	f.calls++
	return domain.NewSeries(seriesName, []time.Time{day(0)}, []float64{1})
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	cdec := &fakeFetcher{}
	r.Register(domain.SourceCDEC, cdec)

	s, err := r.FetchAccumulatedPrecip(context.Background(), domain.Station{ID: "TUM", Source: domain.SourceCDEC}, testStart, testStop)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, cdec.calls)

	_, err = r.FetchAccumulatedPrecip(context.Background(), domain.Station{ID: "X", Source: domain.SourceNRCS}, testStart, testStop)
	require.ErrorIs(t, err, domain.ErrInvalidSource)
}

func TestRegistry_Sources(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.SourceMesowest, &fakeFetcher{})
	r.Register(domain.SourceCDEC, &fakeFetcher{})
	assert.Equal(t, []domain.Source{domain.SourceCDEC, domain.SourceMesowest}, r.Sources())
}

package station

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/couchcryptid/metevents/internal/domain"
)

const (
	// cdecAccumPrecipSensor is CDEC sensor 2, PRECIPITATION, ACCUMULATED (inches).
	cdecAccumPrecipSensor = "2"
	// cdecMissing is the CDEC sentinel for a missing reading.
	cdecMissing = -9999
	// cdecDateLayout matches CDEC timestamps such as "2023-1-5 00:00".
	cdecDateLayout = "2006-1-2 15:04"
)

// CDECClient reads daily accumulated precipitation from the California Data
// Exchange Center JSON servlet. Station IDs are three letters, e.g. "TUM".
type CDECClient struct {
	httpSource
}

func NewCDECClient(opts Options) *CDECClient {
	return &CDECClient{httpSource: newHTTPSource(domain.SourceCDEC, opts)}
}

func (c *CDECClient) FetchAccumulatedPrecip(ctx context.Context, station domain.Station, start, stop time.Time) (domain.Series, error) {
	params := url.Values{
		"Stations":   {station.ID},
		"SensorNums": {cdecAccumPrecipSensor},
		"dur_code":   {"D"},
		"Start":      {start.Format(time.DateOnly)},
		"End":        {stop.Format(time.DateOnly)},
	}

	var resp []cdecReading
	if err := c.getJSON(ctx, c.baseURL+"?"+params.Encode(), &resp); err != nil {
		return domain.Series{}, err
	}

	samples := make([]dailySample, 0, len(resp))
	for _, r := range resp {
		ts, err := time.Parse(cdecDateLayout, r.Date)
		if err != nil {
			return domain.Series{}, fmt.Errorf("parse CDEC date %q: %w", r.Date, err)
		}
		v := valueOrNaN(r.Value)
		if v == cdecMissing {
			v = math.NaN()
		}
		samples = append(samples, dailySample{day: utcDay(ts), value: v})
	}

	s, err := buildDailySeries(samples)
	if err != nil {
		return domain.Series{}, fmt.Errorf("build CDEC series: %w", err)
	}
	return c.finish(station, s), nil
}

// CDEC API response types.

type cdecReading struct {
	StationID  string   `json:"stationId"`
	DurCode    string   `json:"durCode"`
	SensorNum  int      `json:"SENS_NO"`
	SensorType string   `json:"sensorType"`
	Date       string   `json:"date"`
	Value      *float64 `json:"value"`
	Units      string   `json:"units"`
}

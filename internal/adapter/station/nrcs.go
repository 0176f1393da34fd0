package station

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/couchcryptid/metevents/internal/domain"
)

// NRCSClient reads SNOTEL accumulated precipitation (element PREC) from the
// NRCS AWDB REST API. Station IDs are triplets, e.g. "538:CO:SNTL".
type NRCSClient struct {
	httpSource
}

func NewNRCSClient(opts Options) *NRCSClient {
	return &NRCSClient{httpSource: newHTTPSource(domain.SourceNRCS, opts)}
}

func (c *NRCSClient) FetchAccumulatedPrecip(ctx context.Context, station domain.Station, start, stop time.Time) (domain.Series, error) {
	params := url.Values{
		"stationTriplets":     {station.ID},
		"elements":            {"PREC"},
		"duration":            {"DAILY"},
		"beginDate":           {start.Format(time.DateOnly)},
		"endDate":             {stop.Format(time.DateOnly)},
		"periodRef":           {"END"},
		"centralTendencyType": {"NONE"},
		"returnFlags":         {"false"},
	}

	var resp []awdbStation
	if err := c.getJSON(ctx, c.baseURL+"/data?"+params.Encode(), &resp); err != nil {
		return domain.Series{}, err
	}

	var samples []dailySample
	for _, st := range resp {
		for _, d := range st.Data {
			if d.StationElement.ElementCode != "PREC" {
				continue
			}
			for _, v := range d.Values {
				day, err := time.Parse(time.DateOnly, v.Date)
				if err != nil {
					return domain.Series{}, fmt.Errorf("parse NRCS date %q: %w", v.Date, err)
				}
				samples = append(samples, dailySample{day: day, value: valueOrNaN(v.Value)})
			}
		}
	}

	s, err := buildDailySeries(samples)
	if err != nil {
		return domain.Series{}, fmt.Errorf("build NRCS series: %w", err)
	}
	return c.finish(station, s), nil
}

// AWDB API response types.

type awdbStation struct {
	StationTriplet string     `json:"stationTriplet"`
	Data           []awdbData `json:"data"`
}

type awdbData struct {
	StationElement struct {
		ElementCode    string `json:"elementCode"`
		StoredUnitCode string `json:"storedUnitCode"`
	} `json:"stationElement"`
	Values []awdbValue `json:"values"`
}

type awdbValue struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/metevents/internal/domain"
)

// synopticTimeLayout is the start/end parameter format of the Synoptic API.
const synopticTimeLayout = "200601021504"

// MesowestClient reads accumulated precipitation from the Synoptic Data
// timeseries API and keeps the last reading of each UTC day.
type MesowestClient struct {
	httpSource
	token string
}

func NewMesowestClient(token string, opts Options) *MesowestClient {
	return &MesowestClient{httpSource: newHTTPSource(domain.SourceMesowest, opts), token: token}
}

func (c *MesowestClient) FetchAccumulatedPrecip(ctx context.Context, station domain.Station, start, stop time.Time) (domain.Series, error) {
	if c.token == "" {
		return domain.Series{}, errors.New("MESOWEST request: token is required")
	}

	params := url.Values{
		"stid":       {station.ID},
		"start":      {start.UTC().Format(synopticTimeLayout)},
		"end":        {stop.UTC().Format(synopticTimeLayout)},
		"vars":       {"precip_accum"},
		"units":      {"english"},
		"obtimezone": {"utc"},
		"token":      {c.token},
	}

	var resp synopticResponse
	if err := c.getJSON(ctx, c.baseURL+"/stations/timeseries?"+params.Encode(), &resp); err != nil {
		return domain.Series{}, err
	}
	if resp.Summary.ResponseCode != 1 {
		c.recordOutcome("error")
		return domain.Series{}, fmt.Errorf("MESOWEST API error: %s", resp.Summary.ResponseMessage)
	}

	var samples []dailySample
	for _, st := range resp.Stations {
		times, values, err := st.precipAccum()
		if err != nil {
			return domain.Series{}, err
		}
		for i, raw := range times {
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return domain.Series{}, fmt.Errorf("parse MESOWEST time %q: %w", raw, err)
			}
			samples = append(samples, dailySample{day: utcDay(ts.UTC()), value: valueOrNaN(values[i])})
		}
	}

	s, err := buildDailySeries(samples)
	if err != nil {
		return domain.Series{}, fmt.Errorf("build MESOWEST series: %w", err)
	}
	return c.finish(station, s), nil
}

// Synoptic API response types.

type synopticResponse struct {
	Summary struct {
		ResponseCode    int    `json:"RESPONSE_CODE"`
		ResponseMessage string `json:"RESPONSE_MESSAGE"`
	} `json:"SUMMARY"`
	Stations []synopticStation `json:"STATION"`
}

type synopticStation struct {
	STID         string                     `json:"STID"`
	Observations map[string]json.RawMessage `json:"OBSERVATIONS"`
}

// precipAccum decodes the observation times and the first precip_accum set,
// e.g. precip_accum_set_1. A station without the variable yields no samples.
func (s synopticStation) precipAccum() ([]string, []*float64, error) {
	keys := make([]string, 0, len(s.Observations))
	for k := range s.Observations {
		if strings.HasPrefix(k, "precip_accum_set_") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, nil, nil
	}
	sort.Strings(keys)

	var times []string
	if err := json.Unmarshal(s.Observations["date_time"], &times); err != nil {
		return nil, nil, fmt.Errorf("decode MESOWEST date_time: %w", err)
	}
	var values []*float64
	if err := json.Unmarshal(s.Observations[keys[0]], &values); err != nil {
		return nil, nil, fmt.Errorf("decode MESOWEST %s: %w", keys[0], err)
	}
	if len(values) != len(times) {
		return nil, nil, fmt.Errorf("MESOWEST station %s: %d times but %d values", s.STID, len(times), len(values))
	}
	return times, values, nil
}

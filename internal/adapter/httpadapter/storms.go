package httpadapter

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/metevents/internal/adapter/sqlite"
	"github.com/couchcryptid/metevents/internal/domain"
)

type stormsResponse struct {
	Storms []domain.StormRecord `json:"storms"`
	Count  int                  `json:"count"`
}

type stationResponse struct {
	StationID   string        `json:"station_id"`
	StationName string        `json:"station_name,omitempty"`
	Source      domain.Source `json:"source"`
	Configured  bool          `json:"configured"`
	StormCount  int           `json:"storm_count"`
	LatestStart *time.Time    `json:"latest_start,omitempty"`
}

func (s *Server) handleStorms(w http.ResponseWriter, r *http.Request) {
	filter, err := parseStormFilter(r)
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	storms, err := s.store.ListStorms(r.Context(), filter)
	if err != nil {
		s.logger.Error("list storms failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorBody("failed to list storms"))
		return
	}
	if storms == nil {
		storms = []domain.StormRecord{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, stormsResponse{Storms: storms, Count: len(storms)})
}

// handleStations lists configured stations and any station with stored storms.
func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.StationSummaries(r.Context())
	if err != nil {
		s.logger.Error("station summaries failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorBody("failed to list stations"))
		return
	}

	byKey := make(map[string]sqlite.StationSummary, len(summaries))
	for _, sum := range summaries {
		byKey[domain.Station{ID: sum.StationID, Source: sum.Source}.String()] = sum
	}

	out := make([]stationResponse, 0, len(s.stations)+len(summaries))
	for _, st := range s.stations {
		resp := stationResponse{StationID: st.ID, StationName: st.Name, Source: st.Source, Configured: true}
		if sum, ok := byKey[st.String()]; ok {
			resp.StormCount = sum.StormCount
			latest := sum.LatestStart
			resp.LatestStart = &latest
			delete(byKey, st.String())
		}
		out = append(out, resp)
	}
	// Stations dropped from configuration still have history.
	for _, sum := range summaries {
		key := domain.Station{ID: sum.StationID, Source: sum.Source}.String()
		if _, ok := byKey[key]; !ok {
			continue
		}
		latest := sum.LatestStart
		out = append(out, stationResponse{
			StationID:   sum.StationID,
			StationName: sum.StationName,
			Source:      sum.Source,
			StormCount:  sum.StormCount,
			LatestStart: &latest,
		})
	}

	sharedobs.WriteJSON(w, http.StatusOK, out)
}

func parseStormFilter(r *http.Request) (sqlite.StormFilter, error) {
	q := r.URL.Query()
	f := sqlite.StormFilter{StationID: q.Get("station")}

	if v := q.Get("source"); v != "" {
		src, err := domain.ParseSource(v)
		if err != nil {
			return f, err
		}
		f.Source = src
	}
	if v := q.Get("since"); v != "" {
		since, err := parseSince(v)
		if err != nil {
			return f, err
		}
		f.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("invalid limit %q: must be a positive integer", v)
		}
		f.Limit = n
	}
	return f, nil
}

func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid since %q: use RFC3339 or YYYY-MM-DD", v)
}

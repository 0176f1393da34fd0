package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/metevents/internal/domain"
)

// stationsFile is the YAML layout of STATIONS_FILE:
//
//	stations:
//	  - id: TUM
//	    name: Tuolumne Meadows
//	    source: CDEC
type stationsFile struct {
	Stations []struct {
		ID     string `yaml:"id"`
		Name   string `yaml:"name"`
		Source string `yaml:"source"`
	} `yaml:"stations"`
}

// loadStations merges stations from a YAML file and an inline list of
// SOURCE:ID entries. Duplicates are dropped, first occurrence wins.
func loadStations(path, inline string) ([]domain.Station, error) {
	var stations []domain.Station

	if path != "" {
		fromFile, err := readStationsFile(path)
		if err != nil {
			return nil, err
		}
		stations = append(stations, fromFile...)
	}

	fromEnv, err := ParseStationList(inline)
	if err != nil {
		return nil, err
	}
	stations = append(stations, fromEnv...)

	seen := make(map[string]bool, len(stations))
	out := stations[:0]
	for _, st := range stations {
		if seen[st.String()] {
			continue
		}
		seen[st.String()] = true
		out = append(out, st)
	}
	return out, nil
}

func readStationsFile(path string) ([]domain.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read STATIONS_FILE: %w", err)
	}

	var f stationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse STATIONS_FILE: %w", err)
	}

	stations := make([]domain.Station, 0, len(f.Stations))
	for i, raw := range f.Stations {
		if strings.TrimSpace(raw.ID) == "" {
			return nil, fmt.Errorf("STATIONS_FILE entry %d: id is required", i)
		}
		src, err := domain.ParseSource(raw.Source)
		if err != nil {
			return nil, fmt.Errorf("STATIONS_FILE entry %d: %w", i, err)
		}
		stations = append(stations, domain.Station{ID: strings.TrimSpace(raw.ID), Name: raw.Name, Source: src})
	}
	return stations, nil
}

// ParseStationList parses a comma-separated list of SOURCE:ID entries, e.g.
// "CDEC:TUM,NRCS:538:CO:SNTL". Only the first colon splits source from ID.
func ParseStationList(value string) ([]domain.Station, error) {
	var stations []domain.Station
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		srcName, id, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid station %q: want SOURCE:ID", part)
		}
		src, err := domain.ParseSource(srcName)
		if err != nil {
			return nil, err
		}
		stations = append(stations, domain.Station{ID: strings.TrimSpace(id), Source: src})
	}
	return stations, nil
}

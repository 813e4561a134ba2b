package stations

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"departureboard/pkg/types"

	"gopkg.in/yaml.v3"
)

// File is one YAML document of station definitions.
type File struct {
	Stations []types.Station `yaml:"stations"`
}

// Load reads and validates a station file.
func Load(path string) ([]types.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stations file: %w", err)
	}
	defer f.Close()

	stations, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stations, nil
}

// Decode reads every YAML document in r and concatenates their stations.
func Decode(r io.Reader) ([]types.Station, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var stations []types.Station
	for doc := 1; ; doc++ {
		var file File
		err := decoder.Decode(&file)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		stations = append(stations, file.Stations...)
	}

	if err := Validate(stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// Validate reports every problem in stations at once.
func Validate(stations []types.Station) error {
	if len(stations) == 0 {
		return errors.New("no stations configured")
	}

	var errs []error
	seen := make(map[string]bool, len(stations))
	for i, s := range stations {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("station %d: missing id", i))
		} else if seen[s.ID] {
			errs = append(errs, fmt.Errorf("station %d: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true

		if s.Name == "" {
			errs = append(errs, fmt.Errorf("station %d (%s): missing name", i, s.ID))
		}
		for j, lc := range s.Departures {
			if lc.Line == "" {
				errs = append(errs, fmt.Errorf("station %s departure %d: missing line", s.Name, j))
			}
			if lc.MinTimeThreshold != nil && *lc.MinTimeThreshold < 0 {
				errs = append(errs, fmt.Errorf("station %s line %s: negative minTimeThreshold", s.Name, lc.Line))
			}
		}
	}
	return errors.Join(errs...)
}

// LastServiceLines returns the sorted, de-duplicated set of lines flagged with
// lastService plus any extra lines.
func LastServiceLines(stations []types.Station, extra ...string) []string {
	var lines []string
	for _, l := range extra {
		if l != "" {
			lines = append(lines, l)
		}
	}
	for _, s := range stations {
		for _, lc := range s.Departures {
			if lc.LastService {
				lines = append(lines, lc.Line)
			}
		}
	}
	slices.Sort(lines)
	return slices.Compact(lines)
}

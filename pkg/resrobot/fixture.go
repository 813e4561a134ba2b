package resrobot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FixtureSource serves recorded payloads from a directory, one file per stop
// named <stationID>.json or <stationID>.xml. Used for dry runs without an API key.
type FixtureSource struct {
	dir    string
	format Format
}

func NewFixtureSource(dir string, format Format) *FixtureSource {
	return &FixtureSource{dir: dir, format: format}
}

func (f *FixtureSource) Format() Format {
	return f.format
}

func (f *FixtureSource) FetchDepartures(ctx context.Context, stationID string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(f.dir, stationID+"."+string(f.format))
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture for station %s: %w", stationID, err)
	}

	return &Response{
		StationID: stationID,
		Format:    f.format,
		Body:      body,
		Timestamp: time.Now(),
	}, nil
}

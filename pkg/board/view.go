package board

import (
	"strings"
	"time"

	"departureboard/pkg/departures"
	"departureboard/pkg/types"
)

const (
	// UrgentThreshold is the countdown at or below which a row is highlighted.
	UrgentThreshold = 10

	// RefreshSeconds is the display refresh cadence advertised to clients.
	RefreshSeconds = 30

	fallbackLineColor = "#6b7280"
)

var lineColors = map[types.TransportType]string{
	types.TransportTrain: "#ec619f",
	types.TransportMetro: "#148541",
	types.TransportBus:   "#000000",
	types.TransportTram:  "#b65f1f",
}

// LineColor returns the display colour for a transport mode.
func LineColor(t types.TransportType) string {
	if c, ok := lineColors[t]; ok {
		return c
	}
	return fallbackLineColor
}

// ShortDirection returns the first word of a destination, "Akalla" for
// "Akalla T-bana".
func ShortDirection(direction string) string {
	if fields := strings.Fields(direction); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// Row is one display line of the board.
type Row struct {
	types.ProcessedDeparture

	TimeLeftText   string `json:"time_left_text"`
	NextText       string `json:"next_text"`
	Urgent         bool   `json:"urgent"`
	DirectionShort string `json:"direction_short"`
	LineColor      string `json:"line_color"`
	Badge          string `json:"badge"`
}

func NewRow(d types.ProcessedDeparture, badges *BadgeGenerator) Row {
	row := Row{
		ProcessedDeparture: d,
		TimeLeftText:       departures.FormatMinutes(d.TimeLeft),
		NextText:           departures.FormatNext(d.NextDepartureTimeLeft),
		Urgent:             d.TimeLeft.IsNumeric() && d.TimeLeft <= UrgentThreshold,
		DirectionShort:     ShortDirection(d.Direction),
		LineColor:          LineColor(d.TransportType),
	}
	if badges != nil {
		row.Badge = badges.LineBadge(d.TransportType, d.Name)
	}
	return row
}

// Snapshot is the complete state pushed to displays after each cycle.
type Snapshot struct {
	GeneratedAt    time.Time                     `json:"generated_at"`
	LastUpdated    string                        `json:"last_updated"`
	Rows           []Row                         `json:"rows"`
	LastService    departures.LastServiceWarning `json:"last_service"`
	RefreshSeconds int                           `json:"refresh_seconds"`
	FailedStations []string                      `json:"failed_stations,omitempty"`
}

// NewSnapshot builds a snapshot from a processed board. now should already be
// in the board's local zone; LastUpdated is its wall-clock time.
func NewSnapshot(board []types.ProcessedDeparture, warning departures.LastServiceWarning, now time.Time, badges *BadgeGenerator) Snapshot {
	rows := make([]Row, 0, len(board))
	for _, d := range board {
		rows = append(rows, NewRow(d, badges))
	}
	return Snapshot{
		GeneratedAt:    now,
		LastUpdated:    now.Format("15:04:05"),
		Rows:           rows,
		LastService:    warning,
		RefreshSeconds: RefreshSeconds,
	}
}

// Stations returns the distinct station names on the board in order of first appearance.
func (s Snapshot) Stations() []string {
	var names []string
	seen := make(map[string]bool)
	for _, r := range s.Rows {
		if !seen[r.Station] {
			seen[r.Station] = true
			names = append(names, r.Station)
		}
	}
	return names
}

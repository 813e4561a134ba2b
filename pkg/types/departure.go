package types

import (
	"encoding/json"
	"strconv"
)

// RawDeparture is one upstream departure record as delivered by the
// departure board API for a single station.
type RawDeparture struct {
	Name      string `json:"name"`
	Time      string `json:"time"`
	Date      string `json:"date,omitempty"`
	Direction string `json:"direction"`
	Stop      string `json:"stop,omitempty"`
}

// LineConfig describes how one monitored line is shown for a station.
type LineConfig struct {
	Line             string   `json:"line" yaml:"line"`
	Prioritized      bool     `json:"prioritized,omitempty" yaml:"prioritized"`
	MinTimeThreshold *int     `json:"min_time_threshold,omitempty" yaml:"minTimeThreshold"`
	Directions       []string `json:"directions,omitempty" yaml:"directions"`

	// LastService marks the line as one whose final trip should raise the
	// full-screen warning.
	LastService bool `json:"last_service,omitempty" yaml:"lastService"`
}

type Station struct {
	ID         string       `json:"id" yaml:"id"`
	Name       string       `json:"name" yaml:"name"`
	Departures []LineConfig `json:"departures" yaml:"departures"`
}

// StationDepartures pairs a station with the raw departures fetched for it.
type StationDepartures struct {
	Station    Station        `json:"station"`
	Departures []RawDeparture `json:"departures"`
}

type TransportType string

const (
	TransportTrain   TransportType = "Tåg"
	TransportMetro   TransportType = "Tunnelbana"
	TransportBus     TransportType = "Buss"
	TransportTram    TransportType = "Spårväg"
	TransportUnknown TransportType = "Unknown"
)

// UnknownLine is the line name given to records whose label could not be parsed.
const UnknownLine = "Unknown"

// TimeLeft is a countdown in whole minutes. Negative values are sentinels and
// never represent a real countdown.
type TimeLeft int

const (
	Departed    TimeLeft = -1
	Unparseable TimeLeft = -2
)

func (t TimeLeft) IsNumeric() bool {
	return t >= 0
}

func (t TimeLeft) String() string {
	switch {
	case t == Departed:
		return "Departed"
	case t.IsNumeric():
		return strconv.Itoa(int(t))
	default:
		return "NaN"
	}
}

func (t TimeLeft) MarshalJSON() ([]byte, error) {
	switch {
	case t == Departed:
		return json.Marshal("Departed")
	case t.IsNumeric():
		return []byte(strconv.Itoa(int(t))), nil
	default:
		return []byte("null"), nil
	}
}

func (t *TimeLeft) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "null":
		*t = Unparseable
		return nil
	case `"Departed"`:
		*t = Departed
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return err
	}
	if n < 0 {
		*t = Departed
		return nil
	}
	*t = TimeLeft(n)
	return nil
}

// ProcessedDeparture is one display-ready row of the departure board.
type ProcessedDeparture struct {
	Name                  string        `json:"name"`
	TransportType         TransportType `json:"transport_type"`
	Time                  string        `json:"time"`
	TimeLeft              TimeLeft      `json:"time_left"`
	Direction             string        `json:"direction"`
	Station               string        `json:"station"`
	Prioritized           bool          `json:"prioritized"`
	NextDepartureTimeLeft *int          `json:"next_departure_time_left,omitempty"`
}

package departures

import (
	"strings"

	"departureboard/pkg/types"
)

// Reason explains why a draft was dropped.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoConfig          Reason = "no_config"
	ReasonUnknownLine       Reason = "unknown_line"
	ReasonDeparted          Reason = "departed"
	ReasonUnparseableTime   Reason = "unparseable_time"
	ReasonBelowThreshold    Reason = "below_threshold"
	ReasonDirectionMismatch Reason = "direction_mismatch"
)

// ConfigIndex builds the line lookup for one station.
func ConfigIndex(station types.Station) map[string]types.LineConfig {
	index := make(map[string]types.LineConfig, len(station.Departures))
	for _, cfg := range station.Departures {
		index[cfg.Line] = cfg
	}
	return index
}

// Filter decides whether a draft is shown. cfg is nil when the station has
// no configuration for the draft's line. On success the returned departure
// carries the config's priority flag.
func Filter(draft Draft, cfg *types.LineConfig, defaultThreshold int) (types.ProcessedDeparture, Reason) {
	d := draft.ProcessedDeparture

	if cfg == nil {
		return d, ReasonNoConfig
	}

	switch {
	case d.TimeLeft == types.Departed:
		return d, ReasonDeparted
	case d.Name == types.UnknownLine:
		return d, ReasonUnknownLine
	case !d.TimeLeft.IsNumeric():
		return d, ReasonUnparseableTime
	}

	threshold := defaultThreshold
	if cfg.MinTimeThreshold != nil {
		threshold = *cfg.MinTimeThreshold
	}
	if int(d.TimeLeft) <= threshold {
		return d, ReasonBelowThreshold
	}

	if len(cfg.Directions) > 0 && !matchesDirection(d.Direction, cfg.Directions) {
		return d, ReasonDirectionMismatch
	}

	d.Prioritized = cfg.Prioritized
	return d, ReasonNone
}

func matchesDirection(direction string, filters []string) bool {
	direction = strings.ToLower(direction)
	for _, f := range filters {
		if strings.Contains(direction, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

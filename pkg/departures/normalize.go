package departures

import (
	"regexp"
	"strings"

	"departureboard/pkg/clock"
	"departureboard/pkg/types"
)

var (
	lineLabelPattern   = regexp.MustCompile(`(?i)\b(Buss|Tunnelbana|Tåg|Spårväg)\s*(\d+[A-Z]?)\b`)
	parenthesisPattern = regexp.MustCompile(`\s*\(.*?\)`)
)

var transportTypes = []types.TransportType{
	types.TransportTrain,
	types.TransportMetro,
	types.TransportBus,
	types.TransportTram,
}

// Draft is a normalized departure that has not been filtered yet.
type Draft struct {
	types.ProcessedDeparture
}

// Normalize parses one raw record into a draft for the given station.
func Normalize(raw types.RawDeparture, station string, resolver *clock.Resolver) Draft {
	draft := Draft{types.ProcessedDeparture{
		Name:          types.UnknownLine,
		TransportType: types.TransportUnknown,
		Time:          StripSeconds(raw.Time),
		TimeLeft:      resolver.MinutesUntil(raw.Time),
		Direction:     RemoveParentheses(raw.Direction),
		Station:       station,
	}}

	if transport, line, ok := ParseLineLabel(raw.Name); ok {
		draft.Name = line
		draft.TransportType = transport
	}

	return draft
}

// ParseLineLabel extracts the transport mode and line number from labels
// such as "Tunnelbana 11" or "Länstrafik - Buss 176X".
func ParseLineLabel(label string) (types.TransportType, string, bool) {
	match := lineLabelPattern.FindStringSubmatch(label)
	if match == nil {
		return types.TransportUnknown, types.UnknownLine, false
	}

	for _, tt := range transportTypes {
		if strings.EqualFold(match[1], string(tt)) {
			return tt, match[2], true
		}
	}
	return types.TransportUnknown, types.UnknownLine, false
}

// StripSeconds turns "HH:MM:SS" into "HH:MM".
func StripSeconds(clock string) string {
	parts := strings.Split(clock, ":")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ":")
}

// RemoveParentheses drops every parenthesized annotation from a direction,
// e.g. "Kungsträdgården (via X)" becomes "Kungsträdgården".
func RemoveParentheses(direction string) string {
	return strings.TrimSpace(parenthesisPattern.ReplaceAllString(direction, ""))
}

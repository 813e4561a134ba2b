package departures

import (
	"departureboard/pkg/types"
)

const (
	DefaultLastServiceLine      = "11"
	DefaultLastServiceThreshold = 30
)

// LastServiceWarning is shown full-screen when the final trip of a
// last-service line is about to leave.
type LastServiceWarning struct {
	Active      bool   `json:"active"`
	Line        string `json:"line,omitempty"`
	Station     string `json:"station,omitempty"`
	Direction   string `json:"direction,omitempty"`
	MinutesLeft int    `json:"minutes_left,omitempty"`
}

type LastServiceDetector struct {
	lines     map[string]struct{}
	threshold int
}

func NewLastServiceDetector(lines []string, threshold int) *LastServiceDetector {
	set := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l != "" {
			set[l] = struct{}{}
		}
	}
	return &LastServiceDetector{lines: set, threshold: threshold}
}

// Lines reports how many lines are watched.
func (d *LastServiceDetector) Lines() int {
	return len(d.lines)
}

// Detect looks for rows of a watched line with no following departure. The
// soonest of them decides whether the warning is raised.
func (d *LastServiceDetector) Detect(board []types.ProcessedDeparture) LastServiceWarning {
	var last *types.ProcessedDeparture
	for i := range board {
		dep := &board[i]
		if _, watched := d.lines[dep.Name]; !watched {
			continue
		}
		if dep.NextDepartureTimeLeft != nil || !dep.TimeLeft.IsNumeric() {
			continue
		}
		if last == nil || dep.TimeLeft < last.TimeLeft {
			last = dep
		}
	}

	if last == nil || int(last.TimeLeft) > d.threshold {
		return LastServiceWarning{}
	}

	return LastServiceWarning{
		Active:      true,
		Line:        last.Name,
		Station:     last.Station,
		Direction:   last.Direction,
		MinutesLeft: int(last.TimeLeft),
	}
}

package departures

import (
	"slices"

	"departureboard/pkg/types"
)

type groupKey struct {
	line      string
	direction string
}

// Prioritize orders filtered departures for display. Rows are sorted by
// countdown, the soonest prioritized row is promoted, every (line,
// direction) pair collapses into one row carrying its follow-up countdown,
// rows of pinnedLine are locked to the top and the soonest prioritized row
// among the rest is promoted again. The input slice is left untouched.
func Prioritize(filtered []types.ProcessedDeparture, pinnedLine string) []types.ProcessedDeparture {
	sorted := sortByTimeLeft(filtered)
	promoted := promoteFirstPrioritized(sorted)
	representatives := sortByTimeLeft(collapseGroups(promoted))

	pinned, rest := splitPinned(representatives, pinnedLine)
	rest = promoteFirstPrioritized(rest)

	return append(pinned, rest...)
}

func sortByTimeLeft(deps []types.ProcessedDeparture) []types.ProcessedDeparture {
	sorted := slices.Clone(deps)
	slices.SortStableFunc(sorted, func(a, b types.ProcessedDeparture) int {
		return int(a.TimeLeft) - int(b.TimeLeft)
	})
	return sorted
}

// promoteFirstPrioritized moves the first prioritized row to the front,
// keeping the relative order of everything else.
func promoteFirstPrioritized(deps []types.ProcessedDeparture) []types.ProcessedDeparture {
	idx := slices.IndexFunc(deps, func(d types.ProcessedDeparture) bool { return d.Prioritized })
	if idx <= 0 {
		return deps
	}

	out := make([]types.ProcessedDeparture, 0, len(deps))
	out = append(out, deps[idx])
	out = append(out, deps[:idx]...)
	out = append(out, deps[idx+1:]...)
	return out
}

// collapseGroups keeps the first row of every (line, direction) group in
// first-appearance order and folds the second row's countdown into it.
func collapseGroups(deps []types.ProcessedDeparture) []types.ProcessedDeparture {
	var order []groupKey
	groups := make(map[groupKey][]types.ProcessedDeparture)

	for _, d := range deps {
		key := groupKey{line: d.Name, direction: d.Direction}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], d)
	}

	out := make([]types.ProcessedDeparture, 0, len(order))
	for _, key := range order {
		members := groups[key]
		rep := members[0]
		if len(members) > 1 && members[1].TimeLeft.IsNumeric() {
			next := int(members[1].TimeLeft)
			rep.NextDepartureTimeLeft = &next
		} else if rep.NextDepartureTimeLeft != nil {
			next := *rep.NextDepartureTimeLeft
			rep.NextDepartureTimeLeft = &next
		}
		out = append(out, rep)
	}
	return out
}

func splitPinned(deps []types.ProcessedDeparture, pinnedLine string) ([]types.ProcessedDeparture, []types.ProcessedDeparture) {
	pinned := make([]types.ProcessedDeparture, 0)
	rest := make([]types.ProcessedDeparture, 0, len(deps))
	for _, d := range deps {
		if pinnedLine != "" && d.Name == pinnedLine {
			pinned = append(pinned, d)
		} else {
			rest = append(rest, d)
		}
	}
	return pinned, rest
}

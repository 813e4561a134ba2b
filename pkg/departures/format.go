package departures

import (
	"fmt"

	"departureboard/pkg/types"
)

// FormatMinutes renders a countdown for the board: minutes below an hour,
// whole or half hours above.
func FormatMinutes(t types.TimeLeft) string {
	if !t.IsNumeric() {
		if t == types.Departed {
			return "Departed"
		}
		return "-"
	}

	minutes := int(t)
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}

	hours := minutes / 60
	if minutes%60 >= 30 {
		return fmt.Sprintf("%d.5 h", hours)
	}
	return fmt.Sprintf("%d h", hours)
}

// FormatNext renders the follow-up countdown column.
func FormatNext(next *int) string {
	if next == nil {
		return "-"
	}
	return FormatMinutes(types.TimeLeft(*next))
}

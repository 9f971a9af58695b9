package tracker

import (
	"fmt"
	"strings"
)

// FormatSeconds renders elapsed seconds the way notifications and
// listings display them: "2 Hours 10 Minutes 5 Seconds". Zero and
// negative inputs render as "0 Seconds".
func FormatSeconds(totalSeconds float64) string {
	if totalSeconds < 1 {
		return "0 Seconds"
	}

	total := int(totalSeconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", hours, plural(hours, "Hour")))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", minutes, plural(minutes, "Minute")))
	}
	if seconds > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", seconds, plural(seconds, "Second")))
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

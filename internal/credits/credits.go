// Package credits maps elapsed time and a role tag to a credit amount.
// It is a pure lookup consumed by external reporting; the accounting
// engine never reads it.
package credits

import "github.com/Nysah1997/qw/internal/roles"

// Calculate returns the credits earned for the given elapsed seconds and
// role tag. Negative input yields zero.
func Calculate(totalSeconds float64, role roles.Type) int {
	if totalSeconds < 0 {
		return 0
	}

	hours := totalSeconds / 3600

	if role == roles.TypeGold {
		switch {
		case hours >= 2:
			return 10
		case hours >= 1:
			return 5
		default:
			return 0
		}
	}

	if hours >= 1 {
		return 3
	}
	return 0
}

package credits

import (
	"testing"

	"github.com/Nysah1997/qw/internal/roles"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		role    roles.Type
		want    int
	}{
		{"normal zero", 0, roles.TypeNormal, 0},
		{"normal under an hour", 3599, roles.TypeNormal, 0},
		{"normal one hour", 3600, roles.TypeNormal, 3},
		{"normal two hours still three", 7200, roles.TypeNormal, 3},
		{"gold under an hour", 3599, roles.TypeGold, 0},
		{"gold one hour", 3600, roles.TypeGold, 5},
		{"gold just under two hours", 7199, roles.TypeGold, 5},
		{"gold two hours", 7200, roles.TypeGold, 10},
		{"gold four hours caps at ten", 14400, roles.TypeGold, 10},
		{"negative input", -100, roles.TypeGold, 0},
		{"unknown role treated as normal", 3600, roles.Type("vip"), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Calculate(tt.seconds, tt.role); got != tt.want {
				t.Errorf("Calculate(%v, %q) = %d, want %d", tt.seconds, tt.role, got, tt.want)
			}
		})
	}
}

package tracker

import "testing"

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"zero", 0, "0 Seconds"},
		{"negative", -5, "0 Seconds"},
		{"sub-second", 0.4, "0 Seconds"},
		{"one second", 1, "1 Second"},
		{"seconds only", 45, "45 Seconds"},
		{"one minute exactly", 60, "1 Minute"},
		{"minutes and seconds", 125, "2 Minutes 5 Seconds"},
		{"one hour exactly", 3600, "1 Hour"},
		{"hours minutes seconds", 7805, "2 Hours 10 Minutes 5 Seconds"},
		{"hour and seconds, no minutes", 3605, "1 Hour 5 Seconds"},
		{"fractional truncates", 61.9, "1 Minute 1 Second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSeconds(tt.seconds); got != tt.want {
				t.Errorf("FormatSeconds(%v) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}

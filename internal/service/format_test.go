package service

import (
	"testing"
	"time"
)

func TestTimeGroup(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.Local)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2024, time.June, 15, 0, 0, 0, 0, time.Local), "Today"},
		{time.Date(2024, time.June, 14, 23, 0, 0, 0, time.Local), "Yesterday"},
		{time.Date(2024, time.June, 10, 8, 0, 0, 0, time.Local), "Previous 7 days"},
		{time.Date(2024, time.May, 20, 8, 0, 0, 0, time.Local), "Previous 30 days"},
		{time.Date(2024, time.February, 1, 8, 0, 0, 0, time.Local), "February"},
		{time.Date(2023, time.December, 31, 8, 0, 0, 0, time.Local), "December 2023"},
	}
	for _, tt := range tests {
		if got := TimeGroup(tt.at, now); got != tt.want {
			t.Errorf("TimeGroup(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestShortDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{45*time.Minute + 10*time.Second, "45m"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
		{3 * time.Hour, "3h"},
		{3*24*time.Hour + 4*time.Hour, "3d 4h"},
		{-time.Minute, "0s"},
	}
	for _, tt := range tests {
		if got := ShortDuration(tt.d); got != tt.want {
			t.Errorf("ShortDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{2 * time.Hour, "2 hours"},
		{90 * time.Minute, "1 hour"},
		{3 * 24 * time.Hour, "3 days"},
		{-2 * time.Hour, "2 hours"},
	}
	for _, tt := range tests {
		if got := HumanDuration(tt.d); got != tt.want {
			t.Errorf("HumanDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

package locale

import (
	"testing"
	"time"
)

func TestDateOf(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	tests := []struct {
		name string
		at   time.Time
		loc  *time.Location
		want string
	}{
		{
			name: "same day in UTC",
			at:   time.Date(2025, 4, 30, 10, 0, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "2025-04-30",
		},
		{
			name: "late UTC evening is next day in Shanghai",
			at:   time.Date(2025, 4, 29, 17, 30, 0, 0, time.UTC),
			loc:  shanghai,
			want: "2025-04-30",
		},
		{
			name: "nil location falls back to UTC",
			at:   time.Date(2025, 4, 29, 17, 30, 0, 0, time.UTC),
			loc:  nil,
			want: "2025-04-29",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DateOf(tt.at, tt.loc); got != tt.want {
				t.Errorf("DateOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompactDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2025-04-30", "20250430"},
		{"2025-01-01", "20250101"},
		{"bad-input", "badinput"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CompactDate(tt.input); got != tt.want {
				t.Errorf("CompactDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidDate(t *testing.T) {
	if !ValidDate("2025-04-30") {
		t.Errorf("expected 2025-04-30 to be valid")
	}
	for _, s := range []string{"", "2025-4-30", "2025-02-30", "20250430"} {
		if ValidDate(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestDetectRegion(t *testing.T) {
	tests := []struct {
		timezone string
		want     string
	}{
		{"Asia/Shanghai", "CN"},
		{"asia/shanghai", "CN"},
		{"Asia/Jerusalem", "IL"},
		{"America/Los_Angeles", "US"},
		{"Europe/London", DefaultRegion},
		{"", DefaultRegion},
	}

	for _, tt := range tests {
		t.Run(tt.timezone, func(t *testing.T) {
			if got := DetectRegion(tt.timezone); got != tt.want {
				t.Errorf("DetectRegion(%q) = %q, want %q", tt.timezone, got, tt.want)
			}
		})
	}
}

package sanitizer

import "testing"

func TestNormalizeNote(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "trim spaces",
			input: "  left before call  ",
			want:  "left before call",
		},
		{
			name:  "multiple spaces between words",
			input: "left    before call",
			want:  "left before call",
		},
		{
			name:  "tabs and newlines",
			input: "no\t\nshow",
			want:  "no show",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   \t\n  ",
			want:  "",
		},
		{
			name:  "control characters dropped",
			input: "no\x00show\x07",
			want:  "noshow",
		},
		{
			name:  "unicode preserved",
			input: " 患者未到 ",
			want:  "患者未到",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeNote(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeNote(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := NormalizeNote(got); again != got {
				t.Errorf("NormalizeNote not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestNormalizeRef(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "P-0001", want: "P-0001"},
		{input: "  P-0001\n", want: "P-0001"},
		{input: "P 00 01", want: "P0001"},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		if got := NormalizeRef(tt.input); got != tt.want {
			t.Errorf("NormalizeRef(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestClampPriority(t *testing.T) {
	tests := []struct {
		name     string
		priority int
		want     int
	}{
		{name: "below range", priority: -3, want: 0},
		{name: "in range", priority: 4, want: 4},
		{name: "above range", priority: 42, want: 10},
		{name: "upper bound", priority: 10, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampPriority(tt.priority, 0, 10); got != tt.want {
				t.Errorf("ClampPriority(%d) = %d, want %d", tt.priority, got, tt.want)
			}
		})
	}
}

package timeparsing

import (
	"testing"
	"time"
)

func TestParseCompactDuration(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "+6h adds 6 hours", input: "+6h", want: time.Date(2025, 6, 15, 18, 0, 0, 0, time.UTC)},
		{name: "+1d adds 1 day", input: "+1d", want: time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)},
		{name: "+2w adds 2 weeks", input: "+2w", want: time.Date(2025, 6, 29, 12, 0, 0, 0, time.UTC)},
		{name: "+3m adds 3 months", input: "+3m", want: time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)},
		{name: "+1y adds 1 year", input: "+1y", want: time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)},
		{name: "-1d subtracts 1 day", input: "-1d", want: time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC)},
		{name: "no sign means positive", input: "3m", want: time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)},
		{name: "multi-digit amount", input: "+365d", want: time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)},
		{name: "sign at end is invalid", input: "6h+", wantErr: true},
		{name: "double sign is invalid", input: "++1d", wantErr: true},
		{name: "unknown unit is invalid", input: "1x", wantErr: true},
		{name: "empty string is invalid", input: "", wantErr: true},
		{name: "bare number is invalid", input: "6", wantErr: true},
		{name: "bare unit is invalid", input: "h", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCompactDuration(tt.input, now)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseCompactDuration(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCompactDuration(%q): %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseCompactDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseNaturalLanguage(t *testing.T) {
	// Wednesday, January 15, 2025.
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		input     string
		wantMonth time.Month
		wantDay   int
		wantErr   bool
	}{
		{input: "tomorrow", wantMonth: time.January, wantDay: 16},
		{input: "yesterday", wantMonth: time.January, wantDay: 14},
		{input: "next monday", wantMonth: time.January, wantDay: 20},
		{input: "not a date at all xyz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseNaturalLanguage(tt.input, now)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseNaturalLanguage(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseNaturalLanguage(%q): %v", tt.input, err)
			}
			if got.Month() != tt.wantMonth || got.Day() != tt.wantDay {
				t.Errorf("ParseNaturalLanguage(%q) = %v, want %v %d", tt.input, got, tt.wantMonth, tt.wantDay)
			}
		})
	}
}

func TestParseLayers(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	// Compact duration wins first.
	got, err := Parse("+1d", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Day() != 16 {
		t.Errorf("Parse(+1d) = %v", got)
	}

	// Absolute date-only.
	got, err = Parse("2025-09-30", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Year() != 2025 || got.Month() != time.September || got.Day() != 30 {
		t.Errorf("Parse(2025-09-30) = %v", got)
	}

	// RFC3339.
	got, err = Parse("2025-09-30T08:00:00Z", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hour() != 8 {
		t.Errorf("Parse(RFC3339) = %v", got)
	}

	// Natural language fallback.
	got, err = Parse("tomorrow", now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Day() != 16 {
		t.Errorf("Parse(tomorrow) = %v", got)
	}

	if _, err := Parse("", now); err == nil {
		t.Error("Parse of empty string should fail")
	}
}

package utils

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2024-01-01T00:00:00Z", want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2024-01-01T03:00:00+03:00", want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2024-01-01T00:00:00", want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2024-01-01 12:30:45", want: time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC)},
		{in: "2024-01-01", want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{in: " 2024-01-01T00:00:00Z ", want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q) error: %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if got.Location() != time.UTC {
			t.Fatalf("ParseTimestamp(%q) not UTC: %v", tt.in, got.Location())
		}
	}
}

func TestParseTimestampInvalid(t *testing.T) {
	for _, in := range []string{"", "yesterday", "01/02/2024"} {
		if _, err := ParseTimestamp(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	if got := NormalizeTimestamp("2024-01-01T03:00:00+03:00"); got != "2024-01-01T00:00:00Z" {
		t.Fatalf("NormalizeTimestamp offset form = %q", got)
	}
	if got := NormalizeTimestamp("2024-01-01T00:00:00"); got != "2024-01-01T00:00:00Z" {
		t.Fatalf("NormalizeTimestamp naive form = %q", got)
	}
	// Unparseable input survives untouched.
	if got := NormalizeTimestamp("not-a-date"); got != "not-a-date" {
		t.Fatalf("NormalizeTimestamp garbage = %q", got)
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		until time.Time
		want  int
	}{
		{until: now.AddDate(0, 0, 7), want: 7},
		{until: now.Add(36 * time.Hour), want: 1},
		{until: now.Add(12 * time.Hour), want: 0},
		{until: now, want: 0},
		{until: now.Add(-1 * time.Hour), want: -1},
		{until: now.AddDate(0, 0, -3), want: -3},
		{until: now.Add(-73 * time.Hour), want: -4},
	}

	for _, tt := range tests {
		if got := DaysUntil(now, tt.until); got != tt.want {
			t.Fatalf("DaysUntil(now, %v) = %d, want %d", tt.until, got, tt.want)
		}
	}
}

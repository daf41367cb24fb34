package soap

import (
	"testing"
	"time"
)

func TestFormatDateTime(t *testing.T) {
	utc := time.Date(2024, 4, 12, 13, 20, 0, 123_000_000, time.UTC)
	if got := FormatDateTime(utc); got != "2024-04-12T13:20:00.123Z" {
		t.Errorf("FormatDateTime(utc) = %q", got)
	}

	cet := time.Date(2024, 4, 12, 13, 20, 0, 0, time.FixedZone("CET", 3600))
	if got := FormatDateTime(cet); got != "2024-04-12T13:20:00.000+01:00" {
		t.Errorf("FormatDateTime(cet) = %q", got)
	}
}

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		weak    bool
		want    time.Time
		wantErr bool
	}{
		{
			name: "zulu",
			in:   "2004-04-12T13:20:00Z",
			want: time.Date(2004, 4, 12, 13, 20, 0, 0, time.UTC),
		},
		{
			name: "millis and offset",
			in:   "2004-04-12T13:20:00.5-05:00",
			want: time.Date(2004, 4, 12, 18, 20, 0, 500_000_000, time.UTC),
		},
		{
			name:    "single digits rejected when strict",
			in:      "2004-4-2T3:20:00Z",
			wantErr: true,
		},
		{
			name: "single digits accepted when weak",
			in:   "2004-4-2T3:20:00 Z",
			weak: true,
			want: time.Date(2004, 4, 2, 3, 20, 0, 0, time.UTC),
		},
		{
			name:    "garbage",
			in:      "tomorrow",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDateTime(tt.in, tt.weak)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDateTime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !got.Equal(tt.want) {
				t.Errorf("ParseDateTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "P0Y0M0DT0H0M0S"},
		{90 * time.Minute, "P0Y0M0DT1H30M0S"},
		{2 * 24 * time.Hour, "P0Y0M2DT0H0M0S"},
		{500*24*time.Hour + 4000*time.Second, "P1Y4M11DT1H6M40S"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"P1DT2H", 26 * time.Hour, false},
		{"PT20M", 20 * time.Minute, false},
		{"P0Y", 0, false},
		{"PT1M30.5S", 90*time.Second + 500*time.Millisecond, false},
		{"P1Y4M11DT1H6M40S", 500*24*time.Hour + 4000*time.Second, false},
		{"P", 0, true},
		{"PT", 0, true},
		{"1H", 0, true},
		{"P292Y", 292 * 365 * 24 * time.Hour, false},
		{"P300Y", 0, true},
		{"P292Y1000D", 0, true},
		{"P99999999999999Y", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

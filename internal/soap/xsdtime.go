package soap

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FormatDateTime renders t as an xsd:dateTime with millisecond precision.
// UTC times get a Z suffix, everything else a numeric offset.
func FormatDateTime(t time.Time) string {
	if t.Location() == time.UTC {
		return t.Format("2006-01-02T15:04:05.000Z")
	}
	return t.Format("2006-01-02T15:04:05.000-07:00")
}

var (
	strictDateTime = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})T(\d{2}):(\d{2}):(\d{2})(?:\.(\d{1,3}))?(Z|[-+]\d{2}:\d{2})?$`)
	weakDateTime   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})T(\d{1,2}):(\d{1,2}):(\d{1,2})(?:\.(\d{1,3}))?(Z|[-+]\d{1,2}:\d{2})?$`)
)

// ParseDateTime parses an xsd:dateTime. In weak mode single digit fields
// and embedded whitespace are tolerated, which some devices emit in
// GetStatus responses. A value without zone is taken as UTC.
func ParseDateTime(s string, weak bool) (time.Time, error) {
	re := strictDateTime
	if weak {
		re = weakDateTime
		s = strings.ReplaceAll(s, " ", "")
	}
	s = strings.TrimSpace(s)

	g := re.FindStringSubmatch(s)
	if g == nil {
		return time.Time{}, fmt.Errorf("invalid xsd:dateTime %q", s)
	}

	n := make([]int, 7)
	for i := 1; i <= 6; i++ {
		n[i-1], _ = strconv.Atoi(g[i])
	}
	if frac := g[7]; frac != "" {
		millis, _ := strconv.Atoi((frac + "00")[:3])
		n[6] = millis * int(time.Millisecond)
	}

	loc := time.UTC
	if zone := g[8]; zone != "" && zone != "Z" {
		parts := strings.SplitN(zone[1:], ":", 2)
		h, _ := strconv.Atoi(parts[0])
		m, _ := strconv.Atoi(parts[1])
		offset := h*3600 + m*60
		if zone[0] == '-' {
			offset = -offset
		}
		loc = time.FixedZone("", offset)
	}

	return time.Date(n[0], time.Month(n[1]), n[2], n[3], n[4], n[5], n[6], loc), nil
}

const (
	xsdDay   = 24 * time.Hour
	xsdMonth = 31 * xsdDay
	xsdYear  = 365 * xsdDay

	maxDuration = time.Duration(math.MaxInt64)
)

// FormatDuration renders d as an xsd:duration of the form PnYnMnDTnHnMnS.
// Years count 365 days and months 31 days; sub-second precision is dropped.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int64(d / xsdDay)
	rest := d % xsdDay

	years := days / 365
	days %= 365
	months := days / 31
	days %= 31

	h := int64(rest / time.Hour)
	rest %= time.Hour
	m := int64(rest / time.Minute)
	rest %= time.Minute
	s := int64(rest / time.Second)

	return fmt.Sprintf("P%dY%dM%dDT%dH%dM%dS", years, months, days, h, m, s)
}

var durationPattern = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)(\.\d+)?S)?)?$`)

// ParseDuration parses an xsd:duration using the same year and month
// lengths as FormatDuration.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	g := durationPattern.FindStringSubmatch(s)
	if g == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("invalid xsd:duration %q", s)
	}

	units := []time.Duration{xsdYear, xsdMonth, xsdDay, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if g[i+1] == "" {
			continue
		}
		v, err := strconv.ParseInt(g[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid xsd:duration %q: %w", s, err)
		}
		if v > int64(maxDuration/unit) || time.Duration(v)*unit > maxDuration-d {
			return 0, fmt.Errorf("xsd:duration %q out of range", s)
		}
		d += time.Duration(v) * unit
	}
	if g[7] != "" {
		frac, _ := strconv.ParseFloat(g[7], 64)
		f := time.Duration(frac * float64(time.Second))
		if f > maxDuration-d {
			return 0, fmt.Errorf("xsd:duration %q out of range", s)
		}
		d += f
	}
	return d, nil
}

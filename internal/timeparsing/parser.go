// Package timeparsing provides layered parsing for date expressions on the
// CLI (effective dates, obsolescence dates).
//
// Layers, tried in order:
//  1. Compact duration (+6h, -1d, +2w, 3m, 1y)
//  2. Natural language (tomorrow, next monday)
//  3. Absolute timestamp (RFC3339, date-only)
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// compactDurationRe matches compact duration patterns: [+-]?(\d+)([hdwmy])
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// absoluteLayouts are the accepted absolute formats, most specific first.
var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse resolves a date expression against the reference time. It accepts
// compact durations, natural language and absolute timestamps.
func Parse(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date expression")
	}
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	for _, layout := range absoluteLayouts {
		if ts, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return ts, nil
		}
	}
	return ParseNaturalLanguage(s, now)
}

// ParseCompactDuration parses compact duration syntax relative to now.
//
// Units: h = hours, d = days, w = weeks, m = months, y = years. A missing
// sign means positive.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}
	return applyDuration(now, amount, matches[3]), nil
}

func applyDuration(base time.Time, amount int, unit string) time.Time {
	switch unit {
	case "h":
		return base.Add(time.Duration(amount) * time.Hour)
	case "d":
		return base.AddDate(0, 0, amount)
	case "w":
		return base.AddDate(0, 0, amount*7)
	case "m":
		return base.AddDate(0, amount, 0)
	case "y":
		return base.AddDate(amount, 0, 0)
	default:
		return base
	}
}

// IsCompactDuration reports whether the string matches compact duration
// syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// ParseNaturalLanguage resolves expressions like "tomorrow" or
// "next monday at 2pm" relative to now.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized date expression: %q", s)
	}
	return r.Time, nil
}

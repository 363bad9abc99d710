// Package timeparsing provides layered parsing for due-date
// expressions:
//  1. Compact duration (+6h, -1d, +2w)
//  2. Absolute timestamp (RFC3339, date-only)
//  3. Natural language (tomorrow, next monday 5pm)
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

// ParseDueDate parses a due-date expression relative to now. An empty
// string yields nil (clears the due date). The layers are tried in
// order; the error names the input when no layer matches.
func ParseDueDate(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if IsCompactDuration(s) {
		t, err := ParseCompactDuration(s, now)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	if t, ok := parseNatural(s, now); ok {
		return &t, nil
	}
	return nil, fmt.Errorf("unrecognized due date %q", s)
}

// ParseCompactDuration parses compact duration syntax and returns the
// resulting time.
//
// Units: h = hours, d = days, w = weeks, m = months, y = years.
// A missing sign means positive: "3m" -> now + 3 months.
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

	switch matches[3] {
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	case "m":
		return now.AddDate(0, amount, 0), nil
	case "y":
		return now.AddDate(amount, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("invalid duration unit: %q", matches[3])
}

// IsCompactDuration reports whether s matches compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// parseNatural applies the natural-language layer.
func parseNatural(s string, now time.Time) (time.Time, bool) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil || r == nil {
		return time.Time{}, false
	}
	return r.Time, true
}

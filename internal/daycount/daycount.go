// Package daycount implements the day-count conventions used to turn a
// calendar date span into a year fraction: ACT/360, ACT/365F, ACT/ACT (ISDA)
// and 30/360 (US, NASD end-of-month rules).
package daycount

import (
	"fmt"
	"strings"
	"time"
)

// Basis is a canonical day-count convention.
type Basis string

const (
	Act360    Basis = "ACT/360"
	Act365    Basis = "ACT/365"
	ActAct    Basis = "ACT/ACT"
	Thirty360 Basis = "30/360"
)

// baseAliases maps the textual variants seen in position and curve files to a
// canonical basis. Keys are pre-normalized (upper case, no spaces, '-' → '/').
var baseAliases = map[string]Basis{
	"ACT/360":    Act360,
	"ACT360":     Act360,
	"A/360":      Act360,
	"ACTUAL/360": Act360,

	"ACT/365":     Act365,
	"ACT365":      Act365,
	"A/365":       Act365,
	"ACT/365F":    Act365,
	"ACTUAL/365":  Act365,
	"ACTUAL/365F": Act365,

	"ACT/ACT":           ActAct,
	"ACTACT":            ActAct,
	"A/A":               ActAct,
	"ACTUAL/ACTUAL":     ActAct,
	"ACT/ACTISDA":       ActAct,
	"ACTUAL/ACTISDA":    ActAct,
	"ACTUAL/ACTUALISDA": ActAct,

	"30/360":      Thirty360,
	"30360":       Thirty360,
	"30E/360":     Thirty360,
	"30E360":      Thirty360,
	"30E/360ISDA": Thirty360,
}

// Parse normalizes a textual day-count basis to its canonical form.
func Parse(value string) (Basis, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, " ", "")
	v = strings.ReplaceAll(v, "-", "/")
	for _, ch := range []string{"(", ")", "[", "]"} {
		v = strings.ReplaceAll(v, ch, "")
	}
	v = strings.ReplaceAll(v, "30/360E", "30E/360")
	v = strings.ReplaceAll(v, "US", "")
	v = strings.ReplaceAll(v, "NASD", "")
	v = strings.ReplaceAll(v, "FIXED", "F")

	if b, ok := baseAliases[v]; ok {
		return b, nil
	}
	return "", fmt.Errorf("unrecognized day-count basis %q", value)
}

// YearFrac returns the year fraction between d0 and d1 under the basis.
// d1 before d0 yields a negative fraction under the ACT bases and 30/360;
// callers validate date ordering at the position level.
func YearFrac(d0, d1 time.Time, basis Basis) float64 {
	switch basis {
	case Act360:
		return float64(daysBetween(d0, d1)) / 360.0
	case Act365:
		return float64(daysBetween(d0, d1)) / 365.0
	case ActAct:
		return yearFracActActISDA(d0, d1)
	case Thirty360:
		return yearFrac30360US(d0, d1)
	default:
		// Unknown bases are rejected at parse time; ACT/365 keeps a
		// mis-wired caller numerically sane rather than panicking.
		return float64(daysBetween(d0, d1)) / 365.0
	}
}

func daysBetween(d0, d1 time.Time) int {
	u0 := time.Date(d0.Year(), d0.Month(), d0.Day(), 0, 0, 0, 0, time.UTC)
	u1 := time.Date(d1.Year(), d1.Month(), d1.Day(), 0, 0, 0, 0, time.UTC)
	return int(u1.Sub(u0).Hours() / 24)
}

// IsLeapYear reports whether year is a Gregorian leap year.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

func daysInYear(year int) float64 {
	if IsLeapYear(year) {
		return 366.0
	}
	return 365.0
}

func yearFracActActISDA(d0, d1 time.Time) float64 {
	if d1.Before(d0) {
		return -yearFracActActISDA(d1, d0)
	}
	if d0.Equal(d1) {
		return 0.0
	}
	if d0.Year() == d1.Year() {
		return float64(daysBetween(d0, d1)) / daysInYear(d0.Year())
	}

	endY0 := time.Date(d0.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC)
	yf := float64(daysBetween(d0, endY0)) / daysInYear(d0.Year())
	yf += float64(d1.Year() - d0.Year() - 1)
	startY1 := time.Date(d1.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	yf += float64(daysBetween(startY1, d1)) / daysInYear(d1.Year())
	return yf
}

func lastDayOfMonth(year int, month time.Month) int {
	if month == time.February {
		if IsLeapYear(year) {
			return 29
		}
		return 28
	}
	switch month {
	case time.January, time.March, time.May, time.July, time.August, time.October, time.December:
		return 31
	}
	return 30
}

func isLastDayOfFebruary(d time.Time) bool {
	return d.Month() == time.February && d.Day() == lastDayOfMonth(d.Year(), time.February)
}

func yearFrac30360US(d0, d1 time.Time) float64 {
	if d1.Before(d0) {
		return -yearFrac30360US(d1, d0)
	}

	day0, day1 := d0.Day(), d1.Day()

	// NASD end-of-February adjustment.
	if isLastDayOfFebruary(d0) {
		day0 = 30
	}
	if isLastDayOfFebruary(d1) && day0 == 30 {
		day1 = 30
	}
	if day0 == 31 {
		day0 = 30
	}
	if day1 == 31 && day0 == 30 {
		day1 = 30
	}

	days := 360*(d1.Year()-d0.Year()) + 30*(int(d1.Month())-int(d0.Month())) + (day1 - day0)
	return float64(days) / 360.0
}

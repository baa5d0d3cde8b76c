// Package calendar provides the date arithmetic used by forecasts and scenario handlers.
//
// All dates are calendar days normalised to midnight UTC. Month stepping is
// calendar based and clamps to the last valid day of the target month, so a
// series anchored on the 31st lands on Feb 28 (or 29) and returns to the 31st
// in March.
package calendar

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format for calendar days.
const DateLayout = "2006-01-02"

// Cadence describes how often a generated event recurs.
type Cadence string

// Cadence constants.
const (
	CadenceOneOff    Cadence = "one_off"
	CadenceWeekly    Cadence = "weekly"
	CadenceBiweekly  Cadence = "biweekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
)

// Fixed divisors for apportioning a monthly figure onto shorter cadences:
// a month is 52/12 weeks or 26/12 fortnights.
var (
	monthsPerYear     = decimal.NewFromInt(12)
	weeksPerYear      = decimal.NewFromInt(52)
	fortnightsPerYear = decimal.NewFromInt(26)
)

// ParseCadence validates a cadence string.
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(s); c {
	case CadenceOneOff, CadenceWeekly, CadenceBiweekly, CadenceMonthly, CadenceQuarterly:
		return c, nil
	case "bi-weekly", "fortnightly":
		return CadenceBiweekly, nil
	default:
		return "", fmt.Errorf("unknown cadence %q", s)
	}
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a calendar day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders a calendar day.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// AddWeeks moves t by n fixed seven-day weeks.
func AddWeeks(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, 7*n)
}

// AddMonths moves t by n calendar months, clamping the day to the last valid day
// of the resulting month.
func AddMonths(t time.Time, n int) time.Time {
	t = Day(t)
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := DaysInMonth(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, time.UTC)
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthKey identifies the calendar month containing t.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// WeeksBetween returns the number of whole weeks from a to b (negative if b is before a).
func WeeksBetween(a, b time.Time) int {
	days := int(Day(b).Sub(Day(a)).Hours() / 24)
	if days < 0 {
		return -((-days) / 7)
	}
	return days / 7
}

// Occurrences returns the dates of a series anchored at start, stepping by cadence,
// for every date before end. Monthly and quarterly series step from the anchor
// (AddMonths(start, i)) so clamped days do not drift. A one-off series yields start
// alone when it falls before end.
func Occurrences(start, end time.Time, cadence Cadence) []time.Time {
	start, end = Day(start), Day(end)
	if !start.Before(end) {
		return nil
	}

	var out []time.Time
	for i := 0; ; i++ {
		var next time.Time
		switch cadence {
		case CadenceOneOff:
			return []time.Time{start}
		case CadenceWeekly:
			next = start.AddDate(0, 0, 7*i)
		case CadenceBiweekly:
			next = start.AddDate(0, 0, 14*i)
		case CadenceQuarterly:
			next = AddMonths(start, 3*i)
		default:
			next = AddMonths(start, i)
		}
		if !next.Before(end) {
			return out
		}
		out = append(out, next)
	}
}

// Apportion converts a monthly amount into the per-occurrence amount for cadence.
// Weekly and biweekly use fixed divisors (52/12 and 26/12), not calendar-exact
// day counts. Results are rounded to cents.
func Apportion(monthly decimal.Decimal, cadence Cadence) decimal.Decimal {
	switch cadence {
	case CadenceWeekly:
		return monthly.Mul(monthsPerYear).Div(weeksPerYear).Round(2)
	case CadenceBiweekly:
		return monthly.Mul(monthsPerYear).Div(fortnightsPerYear).Round(2)
	case CadenceQuarterly:
		return monthly.Mul(decimal.NewFromInt(3)).Round(2)
	default:
		return monthly.Round(2)
	}
}

// MonthlyEquivalent is the inverse of Apportion: the monthly figure an amount
// recurring at cadence corresponds to.
func MonthlyEquivalent(amount decimal.Decimal, cadence Cadence) decimal.Decimal {
	switch cadence {
	case CadenceWeekly:
		return amount.Mul(weeksPerYear).Div(monthsPerYear)
	case CadenceBiweekly:
		return amount.Mul(fortnightsPerYear).Div(monthsPerYear)
	case CadenceQuarterly:
		return amount.Div(decimal.NewFromInt(3))
	default:
		return amount
	}
}

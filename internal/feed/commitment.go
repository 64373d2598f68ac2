package feed

import (
	"strconv"
	"strings"
)

// HoursPerWeek normalizes a commitment expressed as quantity of
// duration-units per period into hours per week.
//
// Conversions: hours/week passes through, hours/day assumes a weekday
// schedule (x5), hours/month divides by 4 and floors at 1. Hours per
// event carry no weekly rate and unrecognized unit combinations are
// not guessed at; both return ok=false so callers can log and leave
// the field unset.
func HoursPerWeek(quantity, unit, period string) (string, bool) {
	if !strings.EqualFold(strings.TrimSpace(unit), "hours") {
		return "", false
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(quantity), 64)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "week":
		return strconv.Itoa(int(num)), true
	case "day":
		return strconv.Itoa(int(num) * 5), true
	case "month":
		hrs := int(num / 4.0)
		if hrs < 1 {
			hrs = 1
		}
		return strconv.Itoa(hrs), true
	default:
		return "", false
	}
}

// MinimumAgeFromBand maps a free-text age-range band onto a concrete
// minimum age. Sources that provide numeric ages bypass this.
func MinimumAgeFromBand(band string) (int, bool) {
	b := strings.TrimSpace(band)
	switch {
	case b == "":
		return 0, false
	case strings.Contains(b, "and under"), strings.HasPrefix(b, "Families"):
		return 0, true
	case strings.HasPrefix(b, "Teens"):
		return 13, true
	case strings.HasPrefix(b, "Adults"):
		return 18, true
	case strings.HasPrefix(b, "Seniors"):
		return 65, true
	default:
		return 0, false
	}
}

// RecurrenceFromFrequency maps loose frequency phrasing from delimited
// exports onto an iCal RRULE fragment. Unrecognized values fall back to
// the one-time empty recurrence rather than being rejected.
func RecurrenceFromFrequency(freq string) string {
	f := strings.ToLower(strings.TrimSpace(freq))
	switch {
	case f == "", strings.Contains(f, "once"):
		return ""
	case strings.Contains(f, "daily"):
		return "FREQ=DAILY"
	case strings.Contains(f, "other") && strings.Contains(f, "week"):
		return "FREQ=WEEKLY;INTERVAL=2"
	case strings.Contains(f, "weekly"):
		return "FREQ=WEEKLY"
	case strings.Contains(f, "monthly"):
		return "FREQ=MONTHLY"
	default:
		return ""
	}
}

// MaxAbstractLen caps abstracts derived from long descriptions.
const MaxAbstractLen = 300

// AbstractFrom derives a short abstract from a description when the
// source has none.
func AbstractFrom(description string) string {
	s := strings.TrimSpace(description)
	if len(s) <= MaxAbstractLen {
		return s
	}
	return s[:MaxAbstractLen] + "..."
}

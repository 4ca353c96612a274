package billing

import "time"

const (
	isoDateFormat = "2006-01-02"
	ukDateFormat  = "02/01/2006"
)

// ParseFlexibleDate accepts YYYY-MM-DD or DD/MM/YYYY. The second return is
// false for empty input or any other layout; malformed strings never panic.
func ParseFlexibleDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(isoDateFormat, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(ukDateFormat, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// FormatDate renders a date as YYYY-MM-DD, empty for the zero value.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(isoDateFormat)
}

// FormatDateUK renders a date as DD/MM/YYYY, empty for the zero value.
func FormatDateUK(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(ukDateFormat)
}

// MonthSequence returns the first-of-month dates from start's month through
// end's month inclusive, stepping one calendar month. Empty when start > end's
// month.
func MonthSequence(start, end time.Time) []time.Time {
	cur := FirstOfMonth(start)
	last := FirstOfMonth(end)
	var months []time.Time
	for !cur.After(last) {
		months = append(months, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// FirstOfMonth returns midnight UTC on the 1st of d's month.
func FirstOfMonth(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthWindow returns the first and last day of the calendar month containing
// ref. Month lengths and leap years follow the proleptic Gregorian calendar
// used by the time package.
func MonthWindow(ref time.Time) (time.Time, time.Time) {
	first := FirstOfMonth(ref)
	last := first.AddDate(0, 1, -1)
	return first, last
}

// EffectiveWindowStart picks the budget-window floor. When the service starts
// in the same calendar month as contextDate the later of the two dates wins,
// so a mid-month start does not count days before the engagement began.
func EffectiveWindowStart(serviceStart, contextDate time.Time) time.Time {
	monthStart := FirstOfMonth(contextDate)
	if serviceStart.Year() == contextDate.Year() && serviceStart.Month() == contextDate.Month() {
		if serviceStart.After(monthStart) {
			return serviceStart
		}
	}
	return monthStart
}

// MonthLabelShort renders "Mar 24" style labels used by seeded monthly fees.
func MonthLabelShort(d time.Time) string {
	return d.Format("Jan 06")
}

// MonthLabelLong renders "Mar 2024" style labels used by the backfill job.
func MonthLabelLong(d time.Time) string {
	return d.Format("Jan 2006")
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

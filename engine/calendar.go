package engine

import "time"

// =============================================================================
// CALENDAR HELPERS - Date arithmetic for payment periods
// =============================================================================
// Schedules work on calendar dates only; times are normalized to midnight UTC.

// Date builds a midnight-UTC date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOnly strips the clock from t, keeping the calendar day in UTC.
func DateOnly(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// DaysInMonth returns the number of days of the month containing t.
func DaysInMonth(t time.Time) int {
	first := Date(t.Year(), t.Month(), 1)
	return first.AddDate(0, 1, -1).Day()
}

// EndOfMonth returns the last day of the month containing t.
func EndOfMonth(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), 1).AddDate(0, 1, -1)
}

// EndOfNextMonth returns the last day of the month after the one containing t.
func EndOfNextMonth(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), 1).AddDate(0, 2, -1)
}

// DayInNextMonth returns the given day of the month following t, clamped to
// that month's length. Used for company payment-day deadlines.
func DayInNextMonth(t time.Time, day int) time.Time {
	firstOfNext := Date(t.Year(), t.Month(), 1).AddDate(0, 1, 0)
	last := DaysInMonth(firstOfNext)
	if day > last {
		day = last
	}
	return Date(firstOfNext.Year(), firstOfNext.Month(), day)
}

// DaysBetween returns the day-count difference b - a.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

package cycle

import "time"

// DateOf truncates an instant to its UTC calendar date. All cycle arithmetic is
// date-granular.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nextDay(t time.Time) time.Time {
	return DateOf(t).AddDate(0, 0, 1)
}

// calendarMonth returns the calendar month window containing t, both bounds
// inclusive.
func calendarMonth(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).AddDate(0, 0, -1)
	return start, end
}

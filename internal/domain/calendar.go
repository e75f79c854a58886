package domain

import "time"

// BusinessHourRule defines the working window for one day of the week.
// StartTime and EndTime are "HH:MM" wall-clock strings; there is exactly one
// rule per day of week (0=Sunday .. 6=Saturday).
type BusinessHourRule struct {
	DayOfWeek    int
	StartTime    string
	EndTime      string
	IsWorkingDay bool
}

// Holiday marks a non-working date. Recurring holidays apply every year on
// the same month and day.
type Holiday struct {
	ID          string
	Name        string
	Date        time.Time
	IsRecurring bool
	CreatedAt   time.Time
}

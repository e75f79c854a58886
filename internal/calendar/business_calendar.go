package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// maxDayAdvances bounds the cursor walk in AddBusinessDuration. A calendar
// where no weekly rule is marked working would otherwise loop forever; ten
// years of day-advances is far beyond any real resolution window.
const maxDayAdvances = 3660

// Calendar converts between wall-clock time and business time using a weekly
// rule set and holiday exclusions. Instances are point-in-time snapshots of
// the configuration tables and are safe for concurrent reads.
type Calendar struct {
	rules    map[time.Weekday]domain.BusinessHourRule
	holidays []domain.Holiday
}

// New builds a calendar from explicit rules and holidays.
func New(rules []domain.BusinessHourRule, holidays []domain.Holiday) *Calendar {
	byDay := make(map[time.Weekday]domain.BusinessHourRule, len(rules))
	for _, rule := range rules {
		byDay[time.Weekday(rule.DayOfWeek)] = rule
	}
	return &Calendar{rules: byDay, holidays: holidays}
}

// Load snapshots the calendar configuration from the repository.
func Load(ctx context.Context, repo repository.CalendarRepository) (*Calendar, error) {
	rules, err := repo.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load business hour rules: %w", err)
	}
	holidays, err := repo.ListHolidays(ctx)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	return New(rules, holidays), nil
}

// HasWorkingDay reports whether any weekly rule is marked working.
func (c *Calendar) HasWorkingDay() bool {
	for _, rule := range c.rules {
		if rule.IsWorkingDay {
			return true
		}
	}
	return false
}

// IsWorkingInstant reports whether t falls inside the working window of a
// working day that is not a holiday.
func (c *Calendar) IsWorkingInstant(t time.Time) bool {
	if !c.isWorkingDate(t) {
		return false
	}
	winStart, winEnd, ok := c.window(t)
	if !ok {
		return false
	}
	return !t.Before(winStart) && t.Before(winEnd)
}

// BusinessDurationBetween returns the business time elapsed between start and
// end. The result is non-negative and never exceeds end-start.
func (c *Calendar) BusinessDurationBetween(start, end time.Time) time.Duration {
	if !start.Before(end) {
		return 0
	}

	var total time.Duration
	for day := startOfDay(start); day.Before(end); day = day.AddDate(0, 0, 1) {
		if !c.isWorkingDate(day) {
			continue
		}
		winStart, winEnd, ok := c.window(day)
		if !ok {
			continue
		}
		lo := winStart
		if start.After(lo) {
			lo = start
		}
		hi := winEnd
		if end.Before(hi) {
			hi = end
		}
		if lo.Before(hi) {
			total += hi.Sub(lo)
		}
	}
	return total
}

// AddBusinessDuration advances start by the given number of business hours.
// Hours at or below zero return start unchanged. A calendar with no working
// day at all is a fatal configuration error, not an infinite loop.
func (c *Calendar) AddBusinessDuration(start time.Time, hours float64) (time.Time, error) {
	if hours <= 0 {
		return start, nil
	}

	remaining := time.Duration(hours * float64(time.Hour))
	cursor := start
	for advances := 0; advances < maxDayAdvances; advances++ {
		if !c.isWorkingDate(cursor) {
			cursor = nextDayStart(cursor)
			continue
		}
		winStart, winEnd, ok := c.window(cursor)
		if !ok {
			cursor = nextDayStart(cursor)
			continue
		}
		if cursor.Before(winStart) {
			cursor = winStart
		}
		if !cursor.Before(winEnd) {
			cursor = nextDayStart(cursor)
			continue
		}

		available := winEnd.Sub(cursor)
		if available >= remaining {
			return cursor.Add(remaining), nil
		}
		remaining -= available
		cursor = nextDayStart(cursor)
	}

	return time.Time{}, apperrors.NewConfigurationError(
		"business calendar has no usable working day", map[string]any{
			"start": start,
			"hours": hours,
		})
}

func (c *Calendar) isWorkingDate(t time.Time) bool {
	rule, ok := c.rules[t.Weekday()]
	if !ok || !rule.IsWorkingDay {
		return false
	}
	return !c.isHoliday(t)
}

func (c *Calendar) isHoliday(t time.Time) bool {
	for _, holiday := range c.holidays {
		if holiday.IsRecurring {
			if holiday.Date.Month() == t.Month() && holiday.Date.Day() == t.Day() {
				return true
			}
			continue
		}
		hy, hm, hd := holiday.Date.Date()
		ty, tm, td := t.Date()
		if hy == ty && hm == tm && hd == td {
			return true
		}
	}
	return false
}

// window returns the working window of t's calendar date as instants in t's
// location. ok is false when the day's rule times are malformed.
func (c *Calendar) window(t time.Time) (time.Time, time.Time, bool) {
	rule, exists := c.rules[t.Weekday()]
	if !exists {
		return time.Time{}, time.Time{}, false
	}
	startMin, err := parseClock(rule.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	endMin, err := parseClock(rule.EndTime)
	if err != nil || endMin <= startMin {
		return time.Time{}, time.Time{}, false
	}
	day := startOfDay(t)
	return day.Add(time.Duration(startMin) * time.Minute),
		day.Add(time.Duration(endMin) * time.Minute), true
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(value string) (int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(value, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	return hh*60 + mm, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func nextDayStart(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1)
}

// ValidateRule checks an administrator-submitted weekly rule.
func ValidateRule(rule *domain.BusinessHourRule) error {
	if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
		return apperrors.NewValidationError("day_of_week must be 0-6", map[string]any{"day_of_week": rule.DayOfWeek})
	}
	if !rule.IsWorkingDay {
		return nil
	}
	start, err := parseClock(rule.StartTime)
	if err != nil {
		return apperrors.NewValidationError("invalid start_time", map[string]any{"start_time": rule.StartTime})
	}
	end, err := parseClock(rule.EndTime)
	if err != nil {
		return apperrors.NewValidationError("invalid end_time", map[string]any{"end_time": rule.EndTime})
	}
	if end <= start {
		return apperrors.NewValidationError("end_time must be after start_time", nil)
	}
	return nil
}

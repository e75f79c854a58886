package dto

import "time"

// BusinessHourRuleRequest payload. DayOfWeek runs 0=Sunday to 6=Saturday and
// times are "HH:MM" strings.
type BusinessHourRuleRequest struct {
	DayOfWeek    int    `json:"day_of_week"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	IsWorkingDay bool   `json:"is_working_day"`
}

// BusinessHourRuleResponse shape.
type BusinessHourRuleResponse struct {
	DayOfWeek    int    `json:"day_of_week"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	IsWorkingDay bool   `json:"is_working_day"`
}

// HolidayRequest payload. Date is "YYYY-MM-DD".
type HolidayRequest struct {
	Name        string `json:"name"`
	Date        string `json:"date"`
	IsRecurring bool   `json:"is_recurring"`
}

// HolidayResponse shape.
type HolidayResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Date        string    `json:"date"`
	IsRecurring bool      `json:"is_recurring"`
	CreatedAt   time.Time `json:"created_at"`
}

package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

const holidayDateLayout = "2006-01-02"

// CalendarHandler manages business-hour rules and holidays.
type CalendarHandler struct {
	repo repository.CalendarRepository
}

// NewCalendarHandler constructs handler.
func NewCalendarHandler(repo repository.CalendarRepository) *CalendarHandler {
	return &CalendarHandler{repo: repo}
}

// ListRules GET /admin/calendar/rules.
func (h *CalendarHandler) ListRules(c *fiber.Ctx) error {
	rules, err := h.repo.ListRules(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.BusinessHourRuleResponse, 0, len(rules))
	for _, rule := range rules {
		items = append(items, dto.BusinessHourRuleResponse{
			DayOfWeek:    rule.DayOfWeek,
			StartTime:    rule.StartTime,
			EndTime:      rule.EndTime,
			IsWorkingDay: rule.IsWorkingDay,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpsertRule PUT /admin/calendar/rules. One rule per day of week; writing the
// same day again replaces it.
func (h *CalendarHandler) UpsertRule(c *fiber.Ctx) error {
	var req dto.BusinessHourRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	rule := &domain.BusinessHourRule{
		DayOfWeek:    req.DayOfWeek,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		IsWorkingDay: req.IsWorkingDay,
	}
	if err := calendar.ValidateRule(rule); err != nil {
		return err
	}
	if err := h.repo.UpsertRule(c.UserContext(), rule); err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.BusinessHourRuleResponse{
		DayOfWeek:    rule.DayOfWeek,
		StartTime:    rule.StartTime,
		EndTime:      rule.EndTime,
		IsWorkingDay: rule.IsWorkingDay,
	}})
}

// ListHolidays GET /admin/calendar/holidays.
func (h *CalendarHandler) ListHolidays(c *fiber.Ctx) error {
	holidays, err := h.repo.ListHolidays(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.HolidayResponse, 0, len(holidays))
	for i := range holidays {
		items = append(items, holidayResponse(&holidays[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateHoliday POST /admin/calendar/holidays.
func (h *CalendarHandler) CreateHoliday(c *fiber.Ctx) error {
	var req dto.HolidayRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Name == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	date, err := time.Parse(holidayDateLayout, req.Date)
	if err != nil {
		return apperrors.NewValidationError("date must be YYYY-MM-DD", map[string]any{"date": req.Date})
	}

	holiday := &domain.Holiday{
		Name:        req.Name,
		Date:        date,
		IsRecurring: req.IsRecurring,
	}
	if err := h.repo.CreateHoliday(c.UserContext(), holiday); err != nil {
		return apperrors.MapError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": holidayResponse(holiday)})
}

// DeleteHoliday DELETE /admin/calendar/holidays/:id.
func (h *CalendarHandler) DeleteHoliday(c *fiber.Ctx) error {
	if err := h.repo.DeleteHoliday(c.UserContext(), c.Params("id")); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("holiday", map[string]any{"holiday_id": c.Params("id")})
		}
		return apperrors.MapError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func holidayResponse(holiday *domain.Holiday) dto.HolidayResponse {
	return dto.HolidayResponse{
		ID:          holiday.ID,
		Name:        holiday.Name,
		Date:        holiday.Date.Format(holidayDateLayout),
		IsRecurring: holiday.IsRecurring,
		CreatedAt:   holiday.CreatedAt,
	}
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	"github.com/spec-kit/helpdesk-sla/internal/worker"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// EscalationRulesHandler manages rule CRUD and the manual scan trigger.
type EscalationRulesHandler struct {
	service *service.EscalationService
	worker  *worker.EscalationWorker
}

// NewEscalationRulesHandler constructs handler.
func NewEscalationRulesHandler(escalationService *service.EscalationService, escalationWorker *worker.EscalationWorker) *EscalationRulesHandler {
	return &EscalationRulesHandler{service: escalationService, worker: escalationWorker}
}

// List GET /admin/escalation-rules.
func (h *EscalationRulesHandler) List(c *fiber.Ctx) error {
	rules, err := h.service.ListRules(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.EscalationRuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, ruleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /admin/escalation-rules/:id.
func (h *EscalationRulesHandler) Get(c *fiber.Ctx) error {
	rule, err := h.service.GetRule(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// Create POST /admin/escalation-rules.
func (h *EscalationRulesHandler) Create(c *fiber.Ctx) error {
	var req dto.EscalationRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	rule := ruleFromRequest(&req)
	if err := h.service.CreateRule(c.UserContext(), rule); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ruleResponse(rule)})
}

// Update PUT /admin/escalation-rules/:id.
func (h *EscalationRulesHandler) Update(c *fiber.Ctx) error {
	var req dto.EscalationRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	rule := ruleFromRequest(&req)
	rule.ID = c.Params("id")
	if err := h.service.UpdateRule(c.UserContext(), rule); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// Delete DELETE /admin/escalation-rules/:id.
func (h *EscalationRulesHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.DeleteRule(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TriggerScan POST /admin/escalations/scan. A scan already in flight answers
// with a conflict instead of running twice.
func (h *EscalationRulesHandler) TriggerScan(c *fiber.Ctx) error {
	summary, err := h.worker.TriggerNow(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ScanResultResponse{
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Errors:    summary.Errors,
	}})
}

// History GET /tickets/:id/escalations.
func (h *EscalationRulesHandler) History(c *fiber.Ctx) error {
	events, err := h.service.HistoryForTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.EscalationEventResponse, 0, len(events))
	for i := range events {
		items = append(items, eventResponse(&events[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func ruleFromRequest(req *dto.EscalationRuleRequest) *domain.EscalationRule {
	rule := &domain.EscalationRule{
		Name:            req.Name,
		Priority:        req.Priority,
		CategoryID:      req.CategoryID,
		TriggerType:     req.TriggerType,
		TriggerHours:    req.TriggerHours,
		EscalationLevel: req.EscalationLevel,
		TargetType:      req.TargetType,
		TargetRole:      req.TargetRole,
		TargetUserID:    req.TargetUserID,
		NotifyManager:   req.NotifyManager,
		IsActive:        true,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	return rule
}

func ruleResponse(rule *domain.EscalationRule) dto.EscalationRuleResponse {
	return dto.EscalationRuleResponse{
		ID:              rule.ID,
		Name:            rule.Name,
		Priority:        rule.Priority,
		CategoryID:      rule.CategoryID,
		TriggerType:     rule.TriggerType,
		TriggerHours:    rule.TriggerHours,
		EscalationLevel: rule.EscalationLevel,
		TargetType:      rule.TargetType,
		TargetRole:      rule.TargetRole,
		TargetUserID:    rule.TargetUserID,
		NotifyManager:   rule.NotifyManager,
		IsActive:        rule.IsActive,
		CreatedAt:       rule.CreatedAt,
		UpdatedAt:       rule.UpdatedAt,
	}
}

func eventResponse(event *domain.EscalationEvent) dto.EscalationEventResponse {
	return dto.EscalationEventResponse{
		ID:                event.ID,
		TicketID:          event.TicketID,
		RuleID:            event.RuleID,
		FromLevel:         event.FromLevel,
		ToLevel:           event.ToLevel,
		EscalatedBy:       event.EscalatedBy,
		EscalatedToUserID: event.EscalatedToUserID,
		EscalatedToRole:   event.EscalatedToRole,
		Reason:            event.Reason,
		CreatedAt:         event.CreatedAt,
	}
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// SlaPoliciesHandler manages the per-priority SLA policy CRUD.
type SlaPoliciesHandler struct {
	service *sla.PolicyService
}

// NewSlaPoliciesHandler constructs handler.
func NewSlaPoliciesHandler(policyService *sla.PolicyService) *SlaPoliciesHandler {
	return &SlaPoliciesHandler{service: policyService}
}

// List GET /admin/sla-policies.
func (h *SlaPoliciesHandler) List(c *fiber.Ctx) error {
	policies, err := h.service.List(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.SlaPolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, policyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /admin/sla-policies.
func (h *SlaPoliciesHandler) Create(c *fiber.Ctx) error {
	var req dto.SlaPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	policy := &domain.SlaPolicy{
		Priority:        req.Priority,
		ResponseHours:   req.ResponseHours,
		ResolutionHours: req.ResolutionHours,
		IsActive:        true,
	}
	if req.IsActive != nil {
		policy.IsActive = *req.IsActive
	}
	if err := h.service.Create(c.UserContext(), policy); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": policyResponse(policy)})
}

// Update PUT /admin/sla-policies/:id.
func (h *SlaPoliciesHandler) Update(c *fiber.Ctx) error {
	var req dto.SlaPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	policy := &domain.SlaPolicy{
		ID:              c.Params("id"),
		Priority:        req.Priority,
		ResponseHours:   req.ResponseHours,
		ResolutionHours: req.ResolutionHours,
		IsActive:        true,
	}
	if req.IsActive != nil {
		policy.IsActive = *req.IsActive
	}
	if err := h.service.Update(c.UserContext(), policy); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// Delete DELETE /admin/sla-policies/:id.
func (h *SlaPoliciesHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func policyResponse(policy *domain.SlaPolicy) dto.SlaPolicyResponse {
	return dto.SlaPolicyResponse{
		ID:              policy.ID,
		Priority:        policy.Priority,
		ResponseHours:   policy.ResponseHours,
		ResolutionHours: policy.ResolutionHours,
		IsActive:        policy.IsActive,
		CreatedAt:       policy.CreatedAt,
		UpdatedAt:       policy.UpdatedAt,
	}
}

package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
)

// SlaStatusHandler serves SLA classifications: per-ticket status plus the
// at-risk and breached listings for operators.
type SlaStatusHandler struct {
	classifier *sla.Classifier
	tickets    *service.TicketService
}

// NewSlaStatusHandler constructs handler.
func NewSlaStatusHandler(classifier *sla.Classifier, tickets *service.TicketService) *SlaStatusHandler {
	return &SlaStatusHandler{classifier: classifier, tickets: tickets}
}

// TicketStatus GET /tickets/:id/sla.
func (h *SlaStatusHandler) TicketStatus(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	status := h.classifier.Classify(ticket, time.Now())
	return c.JSON(fiber.Map{"data": slaStatusResponse(status)})
}

// ListAtRisk GET /admin/sla/at-risk.
func (h *SlaStatusHandler) ListAtRisk(c *fiber.Ctx) error {
	return h.listClassified(c, h.classifier.ListAtRisk)
}

// ListBreached GET /admin/sla/breached.
func (h *SlaStatusHandler) ListBreached(c *fiber.Ctx) error {
	return h.listClassified(c, h.classifier.ListBreached)
}

func (h *SlaStatusHandler) listClassified(c *fiber.Ctx, list func(context.Context, time.Time) ([]sla.ClassifiedTicket, error)) error {
	classified, err := list(c.UserContext(), time.Now())
	if err != nil {
		return err
	}
	items := make([]dto.ClassifiedTicketResponse, 0, len(classified))
	for i := range classified {
		items = append(items, dto.ClassifiedTicketResponse{
			Ticket: ticketResponse(&classified[i].Ticket),
			Sla:    slaStatusResponse(classified[i].Status),
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func slaStatusResponse(status domain.SlaStatus) dto.SlaStatusResponse {
	return dto.SlaStatusResponse{
		TicketID:       status.TicketID,
		Status:         status.Status,
		DueDate:        status.DueDate,
		TimeRemaining:  status.TimeRemaining,
		PercentageUsed: status.PercentageUsed,
		IsBreached:     status.IsBreached,
		IsAtRisk:       status.IsAtRisk,
	}
}

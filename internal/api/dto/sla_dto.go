package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// SlaPolicyRequest payload for create/update.
type SlaPolicyRequest struct {
	Priority        domain.TicketPriority `json:"priority"`
	ResponseHours   float64               `json:"response_hours"`
	ResolutionHours float64               `json:"resolution_hours"`
	IsActive        *bool                 `json:"is_active"`
}

// SlaPolicyResponse shape.
type SlaPolicyResponse struct {
	ID              string                `json:"id"`
	Priority        domain.TicketPriority `json:"priority"`
	ResponseHours   float64               `json:"response_hours"`
	ResolutionHours float64               `json:"resolution_hours"`
	IsActive        bool                  `json:"is_active"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// SlaStatusResponse is the point-in-time classification of a ticket.
type SlaStatusResponse struct {
	TicketID       string          `json:"ticket_id"`
	Status         domain.SlaState `json:"status"`
	DueDate        *time.Time      `json:"due_date"`
	TimeRemaining  string          `json:"time_remaining,omitempty"`
	PercentageUsed float64         `json:"percentage_used"`
	IsBreached     bool            `json:"is_breached"`
	IsAtRisk       bool            `json:"is_at_risk"`
}

// ClassifiedTicketResponse pairs a ticket with its SLA classification for the
// at-risk and breached listings.
type ClassifiedTicketResponse struct {
	Ticket TicketResponse    `json:"ticket"`
	Sla    SlaStatusResponse `json:"sla"`
}

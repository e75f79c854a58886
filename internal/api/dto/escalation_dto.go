package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// EscalationRuleRequest payload for create/update.
type EscalationRuleRequest struct {
	Name            string                      `json:"name"`
	Priority        *domain.TicketPriority      `json:"priority"`
	CategoryID      *string                     `json:"category_id"`
	TriggerType     domain.EscalationTrigger    `json:"trigger_type"`
	TriggerHours    *float64                    `json:"trigger_hours"`
	EscalationLevel int                         `json:"escalation_level"`
	TargetType      domain.EscalationTargetType `json:"target_type"`
	TargetRole      *domain.UserRole            `json:"target_role"`
	TargetUserID    *string                     `json:"target_user_id"`
	NotifyManager   bool                        `json:"notify_manager"`
	IsActive        *bool                       `json:"is_active"`
}

// EscalationRuleResponse shape.
type EscalationRuleResponse struct {
	ID              string                      `json:"id"`
	Name            string                      `json:"name"`
	Priority        *domain.TicketPriority      `json:"priority"`
	CategoryID      *string                     `json:"category_id"`
	TriggerType     domain.EscalationTrigger    `json:"trigger_type"`
	TriggerHours    *float64                    `json:"trigger_hours"`
	EscalationLevel int                         `json:"escalation_level"`
	TargetType      domain.EscalationTargetType `json:"target_type"`
	TargetRole      *domain.UserRole            `json:"target_role"`
	TargetUserID    *string                     `json:"target_user_id"`
	NotifyManager   bool                        `json:"notify_manager"`
	IsActive        bool                        `json:"is_active"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// EscalationEventResponse is one entry of a ticket's escalation history.
type EscalationEventResponse struct {
	ID                string           `json:"id"`
	TicketID          string           `json:"ticket_id"`
	RuleID            string           `json:"rule_id"`
	FromLevel         int              `json:"from_level"`
	ToLevel           int              `json:"to_level"`
	EscalatedBy       string           `json:"escalated_by"`
	EscalatedToUserID *string          `json:"escalated_to_user_id"`
	EscalatedToRole   *domain.UserRole `json:"escalated_to_role"`
	Reason            string           `json:"reason"`
	CreatedAt         time.Time        `json:"created_at"`
}

// ScanResultResponse reports the outcome of a manual scan trigger.
type ScanResultResponse struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

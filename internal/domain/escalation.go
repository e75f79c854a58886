package domain

import "time"

// EscalationTrigger enumerates what fires an escalation rule.
type EscalationTrigger string

const (
	TriggerSlaAtRisk    EscalationTrigger = "SLA_AT_RISK"
	TriggerSlaBreached  EscalationTrigger = "SLA_BREACHED"
	TriggerNoAssignment EscalationTrigger = "NO_ASSIGNMENT"
	TriggerNoResponse   EscalationTrigger = "NO_RESPONSE"
)

// RequiresHours reports whether the trigger needs a wall-clock threshold.
func (t EscalationTrigger) RequiresHours() bool {
	return t == TriggerNoAssignment || t == TriggerNoResponse
}

// Valid reports whether the trigger is a known variant.
func (t EscalationTrigger) Valid() bool {
	switch t {
	case TriggerSlaAtRisk, TriggerSlaBreached, TriggerNoAssignment, TriggerNoResponse:
		return true
	}
	return false
}

// EscalationTargetType enumerates how a rule resolves its assignee.
type EscalationTargetType string

const (
	TargetTypeRole    EscalationTargetType = "ROLE"
	TargetTypeUser    EscalationTargetType = "USER"
	TargetTypeManager EscalationTargetType = "MANAGER"
)

// EscalationRule is an administrator-managed rule evaluated by the periodic
// scanner. TriggerHours is required for NO_ASSIGNMENT/NO_RESPONSE; the target
// field matching TargetType must be set.
type EscalationRule struct {
	ID              string
	Name            string
	Priority        *TicketPriority
	CategoryID      *string
	TriggerType     EscalationTrigger
	TriggerHours    *float64
	EscalationLevel int
	TargetType      EscalationTargetType
	TargetRole      *UserRole
	TargetUserID    *string
	NotifyManager   bool
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SystemActor identifies escalations fired by the scanner rather than a
// person.
const SystemActor = "system"

// EscalationEvent is the append-only escalation history. A ticket's current
// escalation level is the ToLevel of its most recent event, or 1 if none
// exist; it is never stored on the ticket itself.
type EscalationEvent struct {
	ID                string
	TicketID          string
	RuleID            string
	FromLevel         int
	ToLevel           int
	EscalatedBy       string
	EscalatedToUserID *string
	EscalatedToRole   *UserRole
	Reason            string
	CreatedAt         time.Time
}

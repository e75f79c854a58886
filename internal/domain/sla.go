package domain

import "time"

// SlaPolicy sets response/resolution bounds for a priority. Priority is
// unique across policies.
type SlaPolicy struct {
	ID              string
	Priority        TicketPriority
	ResponseHours   float64
	ResolutionHours float64
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SlaState classifies a ticket's standing against its deadline.
type SlaState string

const (
	SlaStateNotApplicable SlaState = "NOT_APPLICABLE"
	SlaStateMet           SlaState = "MET"
	SlaStateAtRisk        SlaState = "AT_RISK"
	SlaStateBreached      SlaState = "BREACHED"
)

// SlaStatus is the point-in-time classification of one ticket.
// TimeRemaining is empty for finished tickets and for tickets without a
// deadline; overdue open tickets carry an explicit "overdue by" marker.
type SlaStatus struct {
	TicketID       string
	Status         SlaState
	DueDate        *time.Time
	TimeRemaining  string
	PercentageUsed float64
	IsBreached     bool
	IsAtRisk       bool
}

package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// Classifier produces point-in-time SLA classifications. The at-risk
// threshold is the percentage of allotted resolution time a ticket may
// consume before it counts as at risk.
type Classifier struct {
	tickets         repository.TicketRepository
	atRiskThreshold float64
}

// ClassifiedTicket pairs a ticket with its classification, for the batch
// helpers used by the scanner and the read-only admin endpoints.
type ClassifiedTicket struct {
	Ticket domain.Ticket
	Status domain.SlaStatus
}

// NewClassifier constructs the classifier.
func NewClassifier(tickets repository.TicketRepository, atRiskThreshold float64) *Classifier {
	if atRiskThreshold <= 0 || atRiskThreshold >= 100 {
		atRiskThreshold = 80
	}
	return &Classifier{tickets: tickets, atRiskThreshold: atRiskThreshold}
}

// Classify evaluates one ticket against its due date at the given instant.
func (c *Classifier) Classify(ticket *domain.Ticket, now time.Time) domain.SlaStatus {
	status := domain.SlaStatus{TicketID: ticket.ID, DueDate: ticket.DueDate}

	if ticket.DueDate == nil {
		status.Status = domain.SlaStateNotApplicable
		return status
	}
	due := *ticket.DueDate

	if finished := ticket.FinishedAt(); finished != nil {
		status.IsBreached = finished.After(due)
		if status.IsBreached {
			status.Status = domain.SlaStateBreached
		} else {
			status.Status = domain.SlaStateMet
		}
		status.PercentageUsed = percentageUsed(ticket.CreatedAt, due, *finished)
		return status
	}

	status.PercentageUsed = percentageUsed(ticket.CreatedAt, due, now)
	status.IsBreached = now.After(due)
	status.IsAtRisk = status.PercentageUsed >= c.atRiskThreshold && !status.IsBreached
	status.TimeRemaining = formatRemaining(due.Sub(now))

	switch {
	case status.IsBreached:
		status.Status = domain.SlaStateBreached
	case status.IsAtRisk:
		status.Status = domain.SlaStateAtRisk
	default:
		status.Status = domain.SlaStateMet
	}
	return status
}

// ListAtRisk returns open tickets that consumed the at-risk share of their
// resolution window without breaching yet.
func (c *Classifier) ListAtRisk(ctx context.Context, now time.Time) ([]ClassifiedTicket, error) {
	return c.listWhere(ctx, now, func(s domain.SlaStatus) bool { return s.IsAtRisk })
}

// ListBreached returns open tickets past their due date.
func (c *Classifier) ListBreached(ctx context.Context, now time.Time) ([]ClassifiedTicket, error) {
	return c.listWhere(ctx, now, func(s domain.SlaStatus) bool { return s.IsBreached })
}

// listWhere classifies every open ticket that carries a due date with the
// exact same formulas as Classify; the predicate selects the slice wanted.
func (c *Classifier) listWhere(ctx context.Context, now time.Time, keep func(domain.SlaStatus) bool) ([]ClassifiedTicket, error) {
	tickets, err := c.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:   domain.OpenStatuses,
		HasDueDate: true,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var result []ClassifiedTicket
	for i := range tickets {
		status := c.Classify(&tickets[i], now)
		if keep(status) {
			result = append(result, ClassifiedTicket{Ticket: tickets[i], Status: status})
		}
	}
	return result, nil
}

func percentageUsed(createdAt, due, at time.Time) float64 {
	total := due.Sub(createdAt)
	if total <= 0 {
		return 100
	}
	pct := float64(at.Sub(createdAt)) / float64(total) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// formatRemaining renders a signed remaining duration, marking overdue
// tickets explicitly.
func formatRemaining(d time.Duration) string {
	if d < 0 {
		return fmt.Sprintf("overdue by %s", (-d).Round(time.Minute))
	}
	return d.Round(time.Minute).String()
}

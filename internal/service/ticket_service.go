package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// TicketService coordinates the ticket lifecycle. The transition table below
// is the single source of truth for which status moves are legal; the
// operation guards layer actor checks on top of it.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	policies   *sla.PolicyService
	dispatcher events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo    repository.TicketRepository
	UserRepo      repository.UserRepository
	PolicyService *sla.PolicyService
	Dispatcher    events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	CategoryID  string
	Title       string
	Description string
	Priority    domain.TicketPriority
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		policies:   deps.PolicyService,
		dispatcher: deps.Dispatcher,
	}
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew:        {domain.TicketStatusAssigned, domain.TicketStatusInProgress, domain.TicketStatusClosed},
	domain.TicketStatusAssigned:   {domain.TicketStatusNew, domain.TicketStatusInProgress, domain.TicketStatusPending, domain.TicketStatusClosed},
	domain.TicketStatusInProgress: {domain.TicketStatusAssigned, domain.TicketStatusPending, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusPending:    {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusResolved:   {domain.TicketStatusInProgress, domain.TicketStatusPending, domain.TicketStatusClosed},
	domain.TicketStatusClosed:     {domain.TicketStatusNew, domain.TicketStatusAssigned},
}

// IsValidTransition reports whether the table allows moving current → next.
func IsValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// CreateTicket creates a ticket and stamps its due date from the active SLA
// policy for the chosen priority. The due date is immutable afterwards.
func (s *TicketService) CreateTicket(ctx context.Context, submitterID string, input TicketCreateInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}

	now := time.Now()
	dueDate, err := s.policies.ComputeDueDate(ctx, priority, now)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		SubmitterID: submitterID,
		CategoryID:  input.CategoryID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusNew,
		Priority:    priority,
		DueDate:     dueDate,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: submitterID},
		Payload: events.TicketCreatedPayload{
			CategoryID: ticket.CategoryID,
			Priority:   ticket.Priority,
			DueDate:    ticket.DueDate,
			Title:      ticket.Title,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// Assign sets the ticket's assignee. Allowed while the ticket is NEW,
// ASSIGNED or IN_PROGRESS; a NEW ticket moves to ASSIGNED, otherwise the
// status is untouched.
func (s *TicketService) Assign(ctx context.Context, actor *domain.User, ticketID, assigneeID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("actor required")
	}
	assignee, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": assigneeID})
		}
		return nil, apperrors.MapError(err)
	}
	if !assignee.Active {
		return nil, apperrors.NewConflict("assignee inactive", map[string]any{"user_id": assigneeID})
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	switch ticket.Status {
	case domain.TicketStatusNew, domain.TicketStatusAssigned, domain.TicketStatusInProgress:
	default:
		return nil, apperrors.NewConflict("ticket cannot be assigned in current status", map[string]any{"status": ticket.Status})
	}

	ticket.AssigneeID = &assignee.ID
	if ticket.Status == domain.TicketStatusNew {
		ticket.Status = domain.TicketStatusAssigned
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: actor.ID},
		Payload:  events.TicketAssignedPayload{AssigneeID: ticket.AssigneeID},
	})
	return ticket, nil
}

// UpdateStatus moves a ticket along the transition table. RESOLVED is only
// reachable through Resolve, and CLOSED through Close, so their guards cannot
// be bypassed here.
func (s *TicketService) UpdateStatus(ctx context.Context, actor *domain.User, ticketID string, newStatus domain.TicketStatus, comment string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("actor required")
	}
	if newStatus == domain.TicketStatusResolved || newStatus == domain.TicketStatusClosed {
		return nil, apperrors.NewValidationError("use the resolve/close operations for this status", map[string]any{"status": newStatus})
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !IsValidTransition(ticket.Status, newStatus) {
		return nil, transitionError(ticket.Status, newStatus)
	}

	oldStatus := ticket.Status
	ticket.Status = newStatus
	if oldStatus == domain.TicketStatusClosed {
		ticket.ClosedAt = nil
	}
	if oldStatus == domain.TicketStatusResolved {
		ticket.ResolvedAt = nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishStatusChange(ctx, actor.ID, ticket, oldStatus, comment)
	return ticket, nil
}

// Resolve marks a ticket resolved. Only the current assignee may resolve,
// and only from IN_PROGRESS or PENDING.
func (s *TicketService) Resolve(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("actor required")
	}
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusInProgress && ticket.Status != domain.TicketStatusPending {
		return nil, transitionError(ticket.Status, domain.TicketStatusResolved)
	}
	if ticket.AssigneeID == nil || *ticket.AssigneeID != actor.ID {
		return nil, apperrors.NewForbidden("only the assignee can resolve")
	}

	oldStatus := ticket.Status
	now := time.Now()
	ticket.Status = domain.TicketStatusResolved
	ticket.ResolvedAt = &now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishStatusChange(ctx, actor.ID, ticket, oldStatus, "resolved")
	return ticket, nil
}

// Close closes a ticket. Elevated roles may close from RESOLVED, IN_PROGRESS
// or PENDING; the original submitter may close their own RESOLVED ticket.
func (s *TicketService) Close(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("actor required")
	}
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	allowed := false
	if actor.Role.Elevated() {
		switch ticket.Status {
		case domain.TicketStatusResolved, domain.TicketStatusInProgress, domain.TicketStatusPending:
			allowed = true
		}
	}
	if !allowed && ticket.SubmitterID == actor.ID && ticket.Status == domain.TicketStatusResolved {
		allowed = true
	}
	if !allowed {
		return nil, apperrors.NewForbidden("close not permitted for this actor and status")
	}

	oldStatus := ticket.Status
	now := time.Now()
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishStatusChange(ctx, actor.ID, ticket, oldStatus, "closed")
	return ticket, nil
}

// Reopen brings a RESOLVED or CLOSED ticket back into the open lifecycle and
// clears its resolution timestamps. A closed ticket restarts at NEW; a
// resolved one returns to IN_PROGRESS.
func (s *TicketService) Reopen(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("actor required")
	}
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	switch ticket.Status {
	case domain.TicketStatusClosed:
		ticket.Status = domain.TicketStatusNew
	case domain.TicketStatusResolved:
		ticket.Status = domain.TicketStatusInProgress
	default:
		return nil, apperrors.NewConflict("only resolved or closed tickets can be reopened", map[string]any{"status": ticket.Status})
	}

	ticket.ResolvedAt = nil
	ticket.ClosedAt = nil
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishStatusChange(ctx, actor.ID, ticket, oldStatus, "reopened")
	return ticket, nil
}

func transitionError(current, next domain.TicketStatus) error {
	return apperrors.NewConflict("invalid status transition", map[string]any{
		"from": current,
		"to":   next,
	})
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publishStatusChange(ctx context.Context, actorID string, ticket *domain.Ticket, oldStatus domain.TicketStatus, comment string) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: actorID},
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: ticket.Status,
			Comment:   comment,
		},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

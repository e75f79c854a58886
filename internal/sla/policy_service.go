package sla

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// PolicyService manages per-priority SLA policies and stamps due dates.
type PolicyService struct {
	policies  repository.SlaPolicyRepository
	calendars repository.CalendarRepository
}

// NewPolicyService constructs the service.
func NewPolicyService(policies repository.SlaPolicyRepository, calendars repository.CalendarRepository) *PolicyService {
	return &PolicyService{policies: policies, calendars: calendars}
}

// Create stores a new policy. Exactly one policy may exist per priority.
func (s *PolicyService) Create(ctx context.Context, policy *domain.SlaPolicy) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}
	existing, err := s.policies.GetByPriority(ctx, policy.Priority)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return apperrors.MapError(err)
	}
	if existing != nil {
		return apperrors.NewConflict("policy already exists for priority", map[string]any{"priority": policy.Priority})
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// Update changes an existing policy's hours or active flag.
func (s *PolicyService) Update(ctx context.Context, policy *domain.SlaPolicy) error {
	if err := validatePolicy(policy); err != nil {
		return err
	}
	if err := s.policies.Update(ctx, policy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("sla policy", map[string]any{"policy_id": policy.ID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// Delete removes a policy. Existing tickets keep their stamped due dates.
func (s *PolicyService) Delete(ctx context.Context, id string) error {
	if err := s.policies.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("sla policy", map[string]any{"policy_id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// List returns all policies.
func (s *PolicyService) List(ctx context.Context) ([]domain.SlaPolicy, error) {
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return policies, nil
}

// Lookup returns the active policy for a priority, or nil when none exists.
func (s *PolicyService) Lookup(ctx context.Context, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	policy, err := s.policies.GetByPriority(ctx, priority)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	if !policy.IsActive {
		return nil, nil
	}
	return policy, nil
}

// ComputeDueDate derives the resolution deadline for a ticket created at
// createdAt. A priority without an active policy yields a nil due date; the
// ticket simply has no enforceable deadline.
func (s *PolicyService) ComputeDueDate(ctx context.Context, priority domain.TicketPriority, createdAt time.Time) (*time.Time, error) {
	policy, err := s.Lookup(ctx, priority)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, nil
	}
	cal, err := calendar.Load(ctx, s.calendars)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	due, err := cal.AddBusinessDuration(createdAt, policy.ResolutionHours)
	if err != nil {
		return nil, err
	}
	return &due, nil
}

func validatePolicy(policy *domain.SlaPolicy) error {
	switch policy.Priority {
	case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh, domain.TicketPriorityUrgent:
	default:
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": policy.Priority})
	}
	if policy.ResponseHours <= 0 || policy.ResolutionHours <= 0 {
		return apperrors.NewValidationError("response_hours and resolution_hours must be positive", nil)
	}
	if policy.ResponseHours > policy.ResolutionHours {
		return apperrors.NewValidationError("response_hours cannot exceed resolution_hours", nil)
	}
	return nil
}

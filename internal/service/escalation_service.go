package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

// Notifier delivers best-effort notifications. Implementations log their own
// failures; callers never roll anything back on a failed send.
type Notifier interface {
	Send(ctx context.Context, userID, notifType, title, message, ticketID string) error
}

// ScanSummary reports the outcome of one escalation scan. A partial scan is
// still a successful scan; failures are carried as data.
type ScanSummary struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// EscalationService owns escalation rule CRUD, the periodic scan, and the
// escalate operation itself.
type EscalationService struct {
	rules       repository.EscalationRuleRepository
	history     repository.EscalationEventRepository
	tickets     repository.TicketRepository
	users       repository.UserRepository
	classifier  *sla.Classifier
	notifier    Notifier
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	dedupWindow time.Duration
}

// EscalationDependencies bundles collaborators for the escalation service.
type EscalationDependencies struct {
	RuleRepo    repository.EscalationRuleRepository
	EventRepo   repository.EscalationEventRepository
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	Classifier  *sla.Classifier
	Notifier    Notifier
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	DedupWindow time.Duration
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	window := deps.DedupWindow
	if window <= 0 {
		window = time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		rules:       deps.RuleRepo,
		history:     deps.EventRepo,
		tickets:     deps.TicketRepo,
		users:       deps.UserRepo,
		classifier:  deps.Classifier,
		notifier:    deps.Notifier,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		dedupWindow: window,
	}
}

// CreateRule validates and stores a new escalation rule.
func (s *EscalationService) CreateRule(ctx context.Context, rule *domain.EscalationRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// UpdateRule validates and updates an existing rule.
func (s *EscalationService) UpdateRule(ctx context.Context, rule *domain.EscalationRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("escalation rule", map[string]any{"rule_id": rule.ID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// GetRule fetches one rule.
func (s *EscalationService) GetRule(ctx context.Context, id string) (*domain.EscalationRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("escalation rule", map[string]any{"rule_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return rule, nil
}

// ListRules returns every rule, active or not.
func (s *EscalationService) ListRules(ctx context.Context) ([]domain.EscalationRule, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rules, nil
}

// DeleteRule removes a rule; its recorded escalation events remain.
func (s *EscalationService) DeleteRule(ctx context.Context, id string) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("escalation rule", map[string]any{"rule_id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// HistoryForTicket returns the append-only escalation history of a ticket.
func (s *EscalationService) HistoryForTicket(ctx context.Context, ticketID string) ([]domain.EscalationEvent, error) {
	history, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

// RunScan evaluates every active rule against its candidate tickets and
// escalates the qualifying ones. A failure on one candidate is logged and
// counted, never aborting the remaining candidates or rules.
func (s *EscalationService) RunScan(ctx context.Context) (*ScanSummary, error) {
	now := time.Now()
	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	summary := &ScanSummary{Errors: []string{}}
	// SLA candidate lists are identical for every rule sharing a trigger
	// type; fetch each list at most once per scan.
	cache := map[domain.EscalationTrigger][]domain.Ticket{}

	for i := range rules {
		rule := rules[i]
		candidates, err := s.candidatesFor(ctx, &rule, now, cache)
		if err != nil {
			s.logger.Error("candidate query failed",
				zap.String("rule_id", rule.ID),
				zap.String("trigger", string(rule.TriggerType)),
				zap.Error(err))
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("rule %s: %v", rule.ID, err))
			continue
		}

		for j := range candidates {
			ticket := candidates[j]
			if !ruleMatches(&rule, &ticket) {
				continue
			}
			fired, err := s.history.ExistsSince(ctx, ticket.ID, rule.ID, now.Add(-s.dedupWindow))
			if err != nil {
				s.recordCandidateFailure(summary, &rule, &ticket, err)
				continue
			}
			if fired {
				continue
			}
			if err := s.Escalate(ctx, &ticket, &rule, domain.SystemActor); err != nil {
				s.recordCandidateFailure(summary, &rule, &ticket, err)
				continue
			}
			summary.Succeeded++
		}
	}
	return summary, nil
}

func (s *EscalationService) recordCandidateFailure(summary *ScanSummary, rule *domain.EscalationRule, ticket *domain.Ticket, err error) {
	s.logger.Error("escalation candidate failed",
		zap.String("rule_id", rule.ID),
		zap.String("ticket_id", ticket.ID),
		zap.Error(err))
	summary.Failed++
	summary.Errors = append(summary.Errors, fmt.Sprintf("ticket %s rule %s: %v", ticket.ID, rule.ID, err))
}

// candidatesFor dispatches on the trigger variant. SLA triggers ride the
// business-hours due date through the classifier; the staleness triggers
// compare plain wall-clock age, which is deliberate — the SLA clock is
// contractual, staleness is operational.
func (s *EscalationService) candidatesFor(ctx context.Context, rule *domain.EscalationRule, now time.Time, cache map[domain.EscalationTrigger][]domain.Ticket) ([]domain.Ticket, error) {
	switch rule.TriggerType {
	case domain.TriggerSlaBreached:
		return s.cachedSlaCandidates(ctx, rule.TriggerType, now, cache, s.classifier.ListBreached)
	case domain.TriggerSlaAtRisk:
		return s.cachedSlaCandidates(ctx, rule.TriggerType, now, cache, s.classifier.ListAtRisk)
	case domain.TriggerNoAssignment:
		return s.candidatesNoAssignment(ctx, rule, now)
	case domain.TriggerNoResponse:
		return s.candidatesNoResponse(ctx, rule, now)
	default:
		return nil, apperrors.NewValidationError("unknown trigger type", map[string]any{"trigger": rule.TriggerType})
	}
}

func (s *EscalationService) cachedSlaCandidates(ctx context.Context, trigger domain.EscalationTrigger, now time.Time, cache map[domain.EscalationTrigger][]domain.Ticket, list func(context.Context, time.Time) ([]sla.ClassifiedTicket, error)) ([]domain.Ticket, error) {
	if cached, ok := cache[trigger]; ok {
		return cached, nil
	}
	classified, err := list(ctx, now)
	if err != nil {
		return nil, err
	}
	tickets := make([]domain.Ticket, 0, len(classified))
	for _, ct := range classified {
		tickets = append(tickets, ct.Ticket)
	}
	cache[trigger] = tickets
	return tickets, nil
}

func (s *EscalationService) candidatesNoAssignment(ctx context.Context, rule *domain.EscalationRule, now time.Time) ([]domain.Ticket, error) {
	cutoff := now.Add(-hoursToDuration(*rule.TriggerHours))
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:      []domain.TicketStatus{domain.TicketStatusNew},
		AssigneeIsNil: true,
		CreatedBefore: &cutoff,
	})
}

func (s *EscalationService) candidatesNoResponse(ctx context.Context, rule *domain.EscalationRule, now time.Time) ([]domain.Ticket, error) {
	cutoff := now.Add(-hoursToDuration(*rule.TriggerHours))
	return s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:      []domain.TicketStatus{domain.TicketStatusAssigned, domain.TicketStatusInProgress},
		UpdatedBefore: &cutoff,
	})
}

func ruleMatches(rule *domain.EscalationRule, ticket *domain.Ticket) bool {
	if rule.Priority != nil && *rule.Priority != ticket.Priority {
		return false
	}
	if rule.CategoryID != nil && *rule.CategoryID != ticket.CategoryID {
		return false
	}
	return true
}

// Escalate records an escalation event for the ticket and reassigns it to the
// rule's resolved target. The event is persisted before the reassignment so
// that a mid-flight failure leaves an auditable escalated-but-unassigned
// state instead of a silent reassignment. Notification fan-out happens last
// and is fire-and-forget.
func (s *EscalationService) Escalate(ctx context.Context, ticket *domain.Ticket, rule *domain.EscalationRule, actor string) error {
	target, err := s.resolveTarget(ctx, rule)
	if err != nil {
		return err
	}

	fromLevel, err := s.currentLevel(ctx, ticket.ID)
	if err != nil {
		return err
	}
	toLevel := rule.EscalationLevel
	if toLevel < fromLevel {
		// The level ladder never goes down; a lower-level rule firing on an
		// already escalated ticket keeps the ticket where it is.
		toLevel = fromLevel
	}

	event := &domain.EscalationEvent{
		TicketID:          ticket.ID,
		RuleID:            rule.ID,
		FromLevel:         fromLevel,
		ToLevel:           toLevel,
		EscalatedBy:       actor,
		EscalatedToUserID: &target.ID,
		EscalatedToRole:   rule.TargetRole,
		Reason:            escalationReason(rule, ticket),
	}
	if err := s.history.Create(ctx, event); err != nil {
		return apperrors.MapError(err)
	}

	previousAssignee := ticket.AssigneeID
	if previousAssignee == nil || *previousAssignee != target.ID {
		ticket.AssigneeID = &target.ID
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return apperrors.MapError(err)
		}
	}

	s.publishEscalation(ctx, ticket, rule, event, actor)
	s.notifyEscalation(ctx, ticket, rule, target, previousAssignee, event.Reason)
	return nil
}

// resolveTarget maps the rule's target descriptor to a concrete active user.
func (s *EscalationService) resolveTarget(ctx context.Context, rule *domain.EscalationRule) (*domain.User, error) {
	switch rule.TargetType {
	case domain.TargetTypeUser:
		user, err := s.users.GetByID(ctx, *rule.TargetUserID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("target user", map[string]any{"user_id": *rule.TargetUserID})
			}
			return nil, apperrors.MapError(err)
		}
		if !user.Active {
			return nil, apperrors.NewConflict("target user inactive", map[string]any{"user_id": user.ID})
		}
		return user, nil

	case domain.TargetTypeRole:
		return s.leastLoadedByRole(ctx, *rule.TargetRole)

	case domain.TargetTypeManager:
		managers, err := s.users.ListActiveByRole(ctx, domain.UserRoleManager, domain.UserRoleAdmin)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if len(managers) == 0 {
			return nil, apperrors.NewConflict("no active manager available", nil)
		}
		return &managers[0], nil

	default:
		return nil, apperrors.NewValidationError("unknown target type", map[string]any{"target_type": rule.TargetType})
	}
}

// leastLoadedByRole picks the active user of the role with the fewest
// currently open assigned tickets. ListActiveByRole returns users ordered by
// id, so a strict less-than keeps the lowest id on ties.
func (s *EscalationService) leastLoadedByRole(ctx context.Context, role domain.UserRole) (*domain.User, error) {
	users, err := s.users.ListActiveByRole(ctx, role)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(users) == 0 {
		return nil, apperrors.NewConflict("no active user for role", map[string]any{"role": role})
	}

	var best *domain.User
	bestLoad := 0
	for i := range users {
		load, err := s.tickets.CountOpenByAssignee(ctx, users[i].ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if best == nil || load < bestLoad {
			best = &users[i]
			bestLoad = load
		}
	}
	return best, nil
}

func (s *EscalationService) currentLevel(ctx context.Context, ticketID string) (int, error) {
	latest, err := s.history.LatestByTicket(ctx, ticketID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if latest == nil {
		return 1, nil
	}
	return latest.ToLevel, nil
}

func escalationReason(rule *domain.EscalationRule, ticket *domain.Ticket) string {
	switch rule.TriggerType {
	case domain.TriggerSlaBreached:
		return fmt.Sprintf("SLA breached for %s ticket", ticket.Priority)
	case domain.TriggerSlaAtRisk:
		return fmt.Sprintf("SLA at risk for %s ticket", ticket.Priority)
	case domain.TriggerNoAssignment:
		return fmt.Sprintf("No assignment after %gh", *rule.TriggerHours)
	case domain.TriggerNoResponse:
		return fmt.Sprintf("No response after %gh", *rule.TriggerHours)
	default:
		return string(rule.TriggerType)
	}
}

// notifyEscalation fans out to the resolved target, the managers when the
// rule asks for it, and the previous assignee. All three sends are
// independent and best-effort.
func (s *EscalationService) notifyEscalation(ctx context.Context, ticket *domain.Ticket, rule *domain.EscalationRule, target *domain.User, previousAssignee *string, reason string) {
	if s.notifier == nil {
		return
	}
	title := fmt.Sprintf("Ticket %s escalated", ticket.ExternalKey)

	if err := s.notifier.Send(ctx, target.ID, "escalation_assigned", title, reason, ticket.ID); err != nil {
		s.logger.Warn("notify target failed", zap.String("user_id", target.ID), zap.Error(err))
	}

	if rule.NotifyManager {
		managers, err := s.users.ListActiveByRole(ctx, domain.UserRoleManager, domain.UserRoleAdmin)
		if err != nil {
			s.logger.Warn("list managers for notification failed", zap.Error(err))
		}
		for i := range managers {
			if managers[i].ID == target.ID {
				continue
			}
			if err := s.notifier.Send(ctx, managers[i].ID, "escalation_manager", title, reason, ticket.ID); err != nil {
				s.logger.Warn("notify manager failed", zap.String("user_id", managers[i].ID), zap.Error(err))
			}
		}
	}

	if previousAssignee != nil && *previousAssignee != target.ID {
		if err := s.notifier.Send(ctx, *previousAssignee, "escalation_reassigned", title, reason, ticket.ID); err != nil {
			s.logger.Warn("notify previous assignee failed", zap.String("user_id", *previousAssignee), zap.Error(err))
		}
	}
}

func (s *EscalationService) publishEscalation(ctx context.Context, ticket *domain.Ticket, rule *domain.EscalationRule, event *domain.EscalationEvent, actor string) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketEscalated,
		TicketID:  ticket.ID,
		Actor:     events.Actor{ID: actor},
		Timestamp: time.Now(),
		Payload: events.TicketEscalatedPayload{
			RuleID:      rule.ID,
			TriggerType: rule.TriggerType,
			FromLevel:   event.FromLevel,
			ToLevel:     event.ToLevel,
			TargetID:    event.EscalatedToUserID,
			Reason:      event.Reason,
		},
	})
}

func validateRule(rule *domain.EscalationRule) error {
	if rule.Name == "" {
		return apperrors.NewValidationError("name required", nil)
	}
	if !rule.TriggerType.Valid() {
		return apperrors.NewValidationError("unknown trigger type", map[string]any{"trigger": rule.TriggerType})
	}
	if rule.EscalationLevel < 1 || rule.EscalationLevel > 5 {
		return apperrors.NewValidationError("escalation_level must be between 1 and 5", map[string]any{"escalation_level": rule.EscalationLevel})
	}
	if rule.TriggerType.RequiresHours() {
		if rule.TriggerHours == nil || *rule.TriggerHours <= 0 {
			return apperrors.NewValidationError("trigger_hours must be positive for this trigger type", map[string]any{"trigger": rule.TriggerType})
		}
	}
	switch rule.TargetType {
	case domain.TargetTypeUser:
		if rule.TargetUserID == nil || *rule.TargetUserID == "" {
			return apperrors.NewValidationError("target_user_id required for USER target", nil)
		}
	case domain.TargetTypeRole:
		if rule.TargetRole == nil || *rule.TargetRole == "" {
			return apperrors.NewValidationError("target_role required for ROLE target", nil)
		}
	case domain.TargetTypeManager:
	default:
		return apperrors.NewValidationError("unknown target type", map[string]any{"target_type": rule.TargetType})
	}
	return nil
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

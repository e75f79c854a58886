package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

type escalationFixture struct {
	tickets  *fakeTicketRepo
	users    *fakeUserRepo
	rules    *fakeRuleRepo
	events   *fakeEventRepo
	notifier *fakeNotifier
	service  *EscalationService
}

func newEscalationFixture(users ...domain.User) *escalationFixture {
	if len(users) == 0 {
		users = []domain.User{agentOne, agentTwo, manager}
	}
	fx := &escalationFixture{
		tickets:  newFakeTicketRepo(),
		users:    newFakeUserRepo(users...),
		rules:    &fakeRuleRepo{},
		events:   &fakeEventRepo{},
		notifier: &fakeNotifier{},
	}
	fx.service = NewEscalationService(EscalationDependencies{
		RuleRepo:    fx.rules,
		EventRepo:   fx.events,
		TicketRepo:  fx.tickets,
		UserRepo:    fx.users,
		Classifier:  sla.NewClassifier(fx.tickets, 80),
		Notifier:    fx.notifier,
		DedupWindow: time.Hour,
	})
	return fx
}

func roleRule(trigger domain.EscalationTrigger, level int) *domain.EscalationRule {
	role := domain.UserRoleAgent
	rule := &domain.EscalationRule{
		Name:            "rule",
		TriggerType:     trigger,
		EscalationLevel: level,
		TargetType:      domain.TargetTypeRole,
		TargetRole:      &role,
		IsActive:        true,
	}
	if trigger.RequiresHours() {
		hours := 4.0
		rule.TriggerHours = &hours
	}
	return rule
}

func breachedTicket(id string) domain.Ticket {
	now := time.Now()
	due := now.Add(-2 * time.Hour)
	return domain.Ticket{
		ID:        id,
		Status:    domain.TicketStatusInProgress,
		Priority:  domain.TicketPriorityHigh,
		CreatedAt: now.Add(-10 * time.Hour),
		UpdatedAt: now,
		DueDate:   &due,
	}
}

func TestCreateRuleValidation(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()

	invalid := []*domain.EscalationRule{
		{},
		{Name: "x", TriggerType: "NONSENSE", EscalationLevel: 1, TargetType: domain.TargetTypeManager},
		{Name: "x", TriggerType: domain.TriggerSlaBreached, EscalationLevel: 0, TargetType: domain.TargetTypeManager},
		{Name: "x", TriggerType: domain.TriggerSlaBreached, EscalationLevel: 6, TargetType: domain.TargetTypeManager},
		{Name: "x", TriggerType: domain.TriggerNoAssignment, EscalationLevel: 1, TargetType: domain.TargetTypeManager},
		{Name: "x", TriggerType: domain.TriggerSlaBreached, EscalationLevel: 1, TargetType: domain.TargetTypeUser},
		{Name: "x", TriggerType: domain.TriggerSlaBreached, EscalationLevel: 1, TargetType: domain.TargetTypeRole},
		{Name: "x", TriggerType: domain.TriggerSlaBreached, EscalationLevel: 1, TargetType: "WHO"},
	}
	for i, rule := range invalid {
		err := fx.service.CreateRule(ctx, rule)
		require.Error(t, err, "case %d", i)
		assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code, "case %d", i)
	}

	valid := roleRule(domain.TriggerSlaBreached, 2)
	require.NoError(t, fx.service.CreateRule(ctx, valid))
	assert.NotEmpty(t, valid.ID)
}

func TestRunScanEscalatesBreachedTicket(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()

	ticket := fx.tickets.add(breachedTicket("t1"))
	require.NoError(t, fx.service.CreateRule(ctx, roleRule(domain.TriggerSlaBreached, 2)))

	summary, err := fx.service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)

	history, err := fx.service.HistoryForTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].FromLevel)
	assert.Equal(t, 2, history[0].ToLevel)
	assert.Equal(t, domain.SystemActor, history[0].EscalatedBy)

	// The ticket is reassigned to the resolved target.
	updated, err := fx.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssigneeID)
}

func TestRunScanDedupWindow(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()

	ticket := fx.tickets.add(breachedTicket("t1"))
	require.NoError(t, fx.service.CreateRule(ctx, roleRule(domain.TriggerSlaBreached, 2)))

	first, err := fx.service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)

	// The same rule firing again inside the window is suppressed.
	second, err := fx.service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Succeeded)
	assert.Equal(t, 0, second.Failed)

	history, err := fx.service.HistoryForTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRunScanDedupExpires(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()

	ticket := fx.tickets.add(breachedTicket("t1"))
	require.NoError(t, fx.service.CreateRule(ctx, roleRule(domain.TriggerSlaBreached, 2)))

	_, err := fx.service.RunScan(ctx)
	require.NoError(t, err)

	// Age the recorded event past the window.
	fx.events.events[0].CreatedAt = time.Now().Add(-2 * time.Hour)

	summary, err := fx.service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	history, err := fx.service.HistoryForTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRunScanNoAssignmentCandidates(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()
	now := time.Now()

	stale := fx.tickets.add(domain.Ticket{
		ID: "stale", Status: domain.TicketStatusNew,
		CreatedAt: now.Add(-6 * time.Hour), UpdatedAt: now.Add(-6 * time.Hour),
	})
	fx.tickets.add(domain.Ticket{
		ID: "fresh", Status: domain.TicketStatusNew,
		CreatedAt: now.Add(-1 * time.Hour), UpdatedAt: now.Add(-1 * time.Hour),
	})
	assignee := agentOne.ID
	fx.tickets.add(domain.Ticket{
		ID: "taken", Status: domain.TicketStatusAssigned, AssigneeID: &assignee,
		CreatedAt: now.Add(-6 * time.Hour), UpdatedAt: now,
	})

	require.NoError(t, fx.service.CreateRule(ctx, roleRule(domain.TriggerNoAssignment, 1)))

	summary, err := fx.service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	history, err := fx.service.HistoryForTicket(ctx, stale.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRunScanNoResponseCandidates(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()
	now := time.Now()

	assignee := agentOne.ID
	quiet := fx.tickets.add(domain.Ticket{
		ID: "quiet", Status: domain.TicketStatusAssigned, AssigneeID: &assignee,
		CreatedAt: now.Add(-12 * time.Hour), UpdatedAt: now.Add(-6 * time.Hour),
	})
	fx.tickets.add(domain.Ticket{
		ID: "active", Status: domain.TicketStatusInProgress, AssigneeID: &assignee,
		CreatedAt: now.Add(-12 * time.Hour), UpdatedAt: now.Add(-1 * time.Hour),
	})

	require.NoError(t, fx.service.CreateRule(ctx, roleRule(domain.TriggerNoResponse, 1)))

	summary, err := fx.service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	history, err := fx.service.HistoryForTicket(ctx, quiet.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRunScanPriorityFilter(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()

	low := breachedTicket("low")
	low.Priority = domain.TicketPriorityLow
	fx.tickets.add(low)

	rule := roleRule(domain.TriggerSlaBreached, 2)
	high := domain.TicketPriorityHigh
	rule.Priority = &high
	require.NoError(t, fx.service.CreateRule(ctx, rule))

	summary, err := fx.service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Succeeded)
}

func TestRunScanContinuesAfterCandidateFailure(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()

	fx.tickets.add(breachedTicket("bad"))
	good := fx.tickets.add(breachedTicket("good"))
	fx.events.failFor = map[string]error{"bad": errors.New("insert failed")}

	require.NoError(t, fx.service.CreateRule(ctx, roleRule(domain.TriggerSlaBreached, 2)))

	summary, err := fx.service.RunScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "bad")

	history, err := fx.service.HistoryForTicket(ctx, good.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestEscalateLevelNeverDecreases(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()

	ticket := fx.tickets.add(breachedTicket("t1"))
	require.NoError(t, fx.events.Create(ctx, &domain.EscalationEvent{
		TicketID: ticket.ID, RuleID: "earlier", FromLevel: 1, ToLevel: 3,
		EscalatedBy: domain.SystemActor,
	}))

	rule := roleRule(domain.TriggerSlaBreached, 2)
	require.NoError(t, fx.service.CreateRule(ctx, rule))

	require.NoError(t, fx.service.Escalate(ctx, ticket, rule, domain.SystemActor))

	latest, err := fx.events.LatestByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.FromLevel)
	assert.Equal(t, 3, latest.ToLevel)
}

func TestResolveTargetLeastLoaded(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()

	// agent-1 carries two open tickets, agent-2 none.
	one := agentOne.ID
	fx.tickets.add(domain.Ticket{ID: "a", Status: domain.TicketStatusInProgress, AssigneeID: &one})
	fx.tickets.add(domain.Ticket{ID: "b", Status: domain.TicketStatusAssigned, AssigneeID: &one})

	ticket := fx.tickets.add(breachedTicket("t1"))
	rule := roleRule(domain.TriggerSlaBreached, 2)
	require.NoError(t, fx.service.CreateRule(ctx, rule))
	require.NoError(t, fx.service.Escalate(ctx, ticket, rule, domain.SystemActor))

	updated, err := fx.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, agentTwo.ID, *updated.AssigneeID)
}

func TestResolveTargetTieBreaksByID(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()

	ticket := fx.tickets.add(breachedTicket("t1"))
	rule := roleRule(domain.TriggerSlaBreached, 2)
	require.NoError(t, fx.service.CreateRule(ctx, rule))
	require.NoError(t, fx.service.Escalate(ctx, ticket, rule, domain.SystemActor))

	updated, err := fx.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, agentOne.ID, *updated.AssigneeID)
}

func TestResolveTargetManager(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()

	ticket := fx.tickets.add(breachedTicket("t1"))
	rule := roleRule(domain.TriggerSlaBreached, 2)
	rule.TargetType = domain.TargetTypeManager
	rule.TargetRole = nil
	require.NoError(t, fx.service.CreateRule(ctx, rule))
	require.NoError(t, fx.service.Escalate(ctx, ticket, rule, domain.SystemActor))

	updated, err := fx.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, manager.ID, *updated.AssigneeID)
}

func TestResolveTargetUserInactive(t *testing.T) {
	fx := newEscalationFixture(agentOne, inactive)
	ctx := context.Background()

	ticket := fx.tickets.add(breachedTicket("t1"))
	rule := roleRule(domain.TriggerSlaBreached, 2)
	rule.TargetType = domain.TargetTypeUser
	rule.TargetRole = nil
	id := inactive.ID
	rule.TargetUserID = &id
	require.NoError(t, fx.service.CreateRule(ctx, rule))

	err := fx.service.Escalate(ctx, ticket, rule, domain.SystemActor)
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
}

func TestEscalateNotifiesTargetAndPreviousAssignee(t *testing.T) {
	fx := newEscalationFixture()
	ctx := context.Background()

	previous := agentOne.ID
	ticket := breachedTicket("t1")
	ticket.AssigneeID = &previous
	seeded := fx.tickets.add(ticket)

	// agent-1 already holds a ticket, so the role target resolves to agent-2.
	rule := roleRule(domain.TriggerSlaBreached, 2)
	rule.NotifyManager = true
	require.NoError(t, fx.service.CreateRule(ctx, rule))
	require.NoError(t, fx.service.Escalate(ctx, seeded, rule, domain.SystemActor))

	types := map[string]bool{}
	for _, sent := range fx.notifier.sent {
		types[sent.Type] = true
	}
	assert.True(t, types["escalation_assigned"])
	assert.True(t, types["escalation_manager"])
	assert.True(t, types["escalation_reassigned"])
}

func TestUpdateRuleNotFound(t *testing.T) {
	fx := newEscalationFixture()

	rule := roleRule(domain.TriggerSlaBreached, 2)
	rule.ID = "missing"
	err := fx.service.UpdateRule(context.Background(), rule)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util"
)

type fakePolicyRepo struct {
	policies []domain.SlaPolicy
}

func (f *fakePolicyRepo) Create(_ context.Context, policy *domain.SlaPolicy) error {
	f.policies = append(f.policies, *policy)
	return nil
}

func (f *fakePolicyRepo) Update(_ context.Context, _ *domain.SlaPolicy) error { return nil }

func (f *fakePolicyRepo) GetByID(_ context.Context, _ string) (*domain.SlaPolicy, error) {
	return nil, pgx.ErrNoRows
}

func (f *fakePolicyRepo) GetByPriority(_ context.Context, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	for i := range f.policies {
		if f.policies[i].Priority == priority {
			clone := f.policies[i]
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakePolicyRepo) List(_ context.Context) ([]domain.SlaPolicy, error) {
	return f.policies, nil
}

func (f *fakePolicyRepo) Delete(_ context.Context, _ string) error { return nil }

type fakeCalendarRepo struct{}

func (fakeCalendarRepo) ListRules(_ context.Context) ([]domain.BusinessHourRule, error) {
	rules := []domain.BusinessHourRule{
		{DayOfWeek: 0, IsWorkingDay: false},
		{DayOfWeek: 6, IsWorkingDay: false},
	}
	for day := 1; day <= 5; day++ {
		rules = append(rules, domain.BusinessHourRule{
			DayOfWeek: day, StartTime: "09:00", EndTime: "17:00", IsWorkingDay: true,
		})
	}
	return rules, nil
}

func (fakeCalendarRepo) UpsertRule(_ context.Context, _ *domain.BusinessHourRule) error { return nil }
func (fakeCalendarRepo) ListHolidays(_ context.Context) ([]domain.Holiday, error)       { return nil, nil }
func (fakeCalendarRepo) CreateHoliday(_ context.Context, _ *domain.Holiday) error       { return nil }
func (fakeCalendarRepo) DeleteHoliday(_ context.Context, _ string) error                { return nil }

var (
	agentOne  = domain.User{ID: "agent-1", Name: "Ada", Email: "ada@example.com", Role: domain.UserRoleAgent, Active: true}
	agentTwo  = domain.User{ID: "agent-2", Name: "Ben", Email: "ben@example.com", Role: domain.UserRoleAgent, Active: true}
	manager   = domain.User{ID: "manager-1", Name: "Mia", Email: "mia@example.com", Role: domain.UserRoleManager, Active: true}
	submitter = domain.User{ID: "user-1", Name: "Sam", Email: "sam@example.com", Role: domain.UserRoleAgent, Active: true}
	inactive  = domain.User{ID: "agent-9", Name: "Gone", Email: "gone@example.com", Role: domain.UserRoleAgent, Active: false}
)

func newTicketService(tickets *fakeTicketRepo, policies *fakePolicyRepo) *TicketService {
	if policies == nil {
		policies = &fakePolicyRepo{}
	}
	return NewTicketService(TicketDependencies{
		TicketRepo:    tickets,
		UserRepo:      newFakeUserRepo(agentOne, agentTwo, manager, submitter, inactive),
		PolicyService: sla.NewPolicyService(policies, fakeCalendarRepo{}),
		Dispatcher:    events.NewInMemoryDispatcher(),
	})
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return apperrors.ToDomainError(err).Code
}

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to domain.TicketStatus }{
		{domain.TicketStatusNew, domain.TicketStatusAssigned},
		{domain.TicketStatusNew, domain.TicketStatusInProgress},
		{domain.TicketStatusNew, domain.TicketStatusClosed},
		{domain.TicketStatusAssigned, domain.TicketStatusNew},
		{domain.TicketStatusAssigned, domain.TicketStatusInProgress},
		{domain.TicketStatusAssigned, domain.TicketStatusPending},
		{domain.TicketStatusInProgress, domain.TicketStatusResolved},
		{domain.TicketStatusPending, domain.TicketStatusResolved},
		{domain.TicketStatusResolved, domain.TicketStatusInProgress},
		{domain.TicketStatusClosed, domain.TicketStatusNew},
		{domain.TicketStatusClosed, domain.TicketStatusAssigned},
	}
	for _, tc := range allowed {
		assert.True(t, IsValidTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to domain.TicketStatus }{
		{domain.TicketStatusNew, domain.TicketStatusResolved},
		{domain.TicketStatusNew, domain.TicketStatusPending},
		{domain.TicketStatusAssigned, domain.TicketStatusResolved},
		{domain.TicketStatusPending, domain.TicketStatusNew},
		{domain.TicketStatusResolved, domain.TicketStatusNew},
		{domain.TicketStatusClosed, domain.TicketStatusResolved},
		{domain.TicketStatusClosed, domain.TicketStatusInProgress},
	}
	for _, tc := range denied {
		assert.False(t, IsValidTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCreateTicketStampsDueDate(t *testing.T) {
	tickets := newFakeTicketRepo()
	policies := &fakePolicyRepo{policies: []domain.SlaPolicy{
		{ID: "p1", Priority: domain.TicketPriorityHigh, ResponseHours: 2, ResolutionHours: 8, IsActive: true},
	}}
	svc := newTicketService(tickets, policies)

	ticket, err := svc.CreateTicket(context.Background(), submitter.ID, TicketCreateInput{
		Title:    "Printer on fire",
		Priority: domain.TicketPriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.NotNil(t, ticket.DueDate)
	assert.NotEmpty(t, ticket.ExternalKey)
}

func TestCreateTicketWithoutPolicy(t *testing.T) {
	svc := newTicketService(newFakeTicketRepo(), nil)

	ticket, err := svc.CreateTicket(context.Background(), submitter.ID, TicketCreateInput{Title: "Low stakes"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Nil(t, ticket.DueDate)
}

func TestCreateTicketRequiresTitle(t *testing.T) {
	svc := newTicketService(newFakeTicketRepo(), nil)

	_, err := svc.CreateTicket(context.Background(), submitter.ID, TicketCreateInput{Title: "   "})
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))
}

func TestAssignMovesNewToAssigned(t *testing.T) {
	tickets := newFakeTicketRepo()
	seeded := tickets.add(domain.Ticket{Status: domain.TicketStatusNew, SubmitterID: submitter.ID})
	svc := newTicketService(tickets, nil)

	ticket, err := svc.Assign(context.Background(), &manager, seeded.ID, agentOne.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, ticket.Status)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, agentOne.ID, *ticket.AssigneeID)
}

func TestAssignKeepsInProgressStatus(t *testing.T) {
	tickets := newFakeTicketRepo()
	assignee := agentOne.ID
	seeded := tickets.add(domain.Ticket{Status: domain.TicketStatusInProgress, AssigneeID: &assignee})
	svc := newTicketService(tickets, nil)

	ticket, err := svc.Assign(context.Background(), &manager, seeded.ID, agentTwo.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	assert.Equal(t, agentTwo.ID, *ticket.AssigneeID)
}

func TestAssignRejectedStates(t *testing.T) {
	tickets := newFakeTicketRepo()
	svc := newTicketService(tickets, nil)

	for _, status := range []domain.TicketStatus{domain.TicketStatusPending, domain.TicketStatusResolved, domain.TicketStatusClosed} {
		seeded := tickets.add(domain.Ticket{Status: status})
		_, err := svc.Assign(context.Background(), &manager, seeded.ID, agentOne.ID)
		assert.Equal(t, "CONFLICT", errCode(t, err), "status %s", status)
	}
}

func TestAssignInactiveUser(t *testing.T) {
	tickets := newFakeTicketRepo()
	seeded := tickets.add(domain.Ticket{Status: domain.TicketStatusNew})
	svc := newTicketService(tickets, nil)

	_, err := svc.Assign(context.Background(), &manager, seeded.ID, inactive.ID)
	assert.Equal(t, "CONFLICT", errCode(t, err))
}

func TestUpdateStatusRejectsTerminalTargets(t *testing.T) {
	tickets := newFakeTicketRepo()
	seeded := tickets.add(domain.Ticket{Status: domain.TicketStatusInProgress})
	svc := newTicketService(tickets, nil)

	for _, status := range []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed} {
		_, err := svc.UpdateStatus(context.Background(), &manager, seeded.ID, status, "")
		assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))
	}
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	tickets := newFakeTicketRepo()
	seeded := tickets.add(domain.Ticket{Status: domain.TicketStatusNew})
	svc := newTicketService(tickets, nil)

	_, err := svc.UpdateStatus(context.Background(), &manager, seeded.ID, domain.TicketStatusPending, "")
	assert.Equal(t, "CONFLICT", errCode(t, err))
}

func TestResolveOnlyByAssignee(t *testing.T) {
	tickets := newFakeTicketRepo()
	assignee := agentOne.ID
	seeded := tickets.add(domain.Ticket{Status: domain.TicketStatusInProgress, AssigneeID: &assignee})
	svc := newTicketService(tickets, nil)

	_, err := svc.Resolve(context.Background(), &agentTwo, seeded.ID)
	assert.Equal(t, "FORBIDDEN", errCode(t, err))

	ticket, err := svc.Resolve(context.Background(), &agentOne, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	assert.NotNil(t, ticket.ResolvedAt)
}

func TestResolveFromNewFails(t *testing.T) {
	tickets := newFakeTicketRepo()
	seeded := tickets.add(domain.Ticket{Status: domain.TicketStatusNew})
	svc := newTicketService(tickets, nil)

	_, err := svc.Resolve(context.Background(), &agentOne, seeded.ID)
	assert.Equal(t, "CONFLICT", errCode(t, err))
}

func TestCloseByElevatedRole(t *testing.T) {
	tickets := newFakeTicketRepo()
	seeded := tickets.add(domain.Ticket{Status: domain.TicketStatusInProgress, SubmitterID: submitter.ID})
	svc := newTicketService(tickets, nil)

	ticket, err := svc.Close(context.Background(), &manager, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, ticket.Status)
	assert.NotNil(t, ticket.ClosedAt)
}

func TestCloseBySubmitterOnlyWhenResolved(t *testing.T) {
	tickets := newFakeTicketRepo()
	svc := newTicketService(tickets, nil)

	open := tickets.add(domain.Ticket{Status: domain.TicketStatusInProgress, SubmitterID: submitter.ID})
	_, err := svc.Close(context.Background(), &submitter, open.ID)
	assert.Equal(t, "FORBIDDEN", errCode(t, err))

	resolved := tickets.add(domain.Ticket{Status: domain.TicketStatusResolved, SubmitterID: submitter.ID})
	ticket, err := svc.Close(context.Background(), &submitter, resolved.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, ticket.Status)
}

func TestReopenClearsTimestamps(t *testing.T) {
	tickets := newFakeTicketRepo()
	svc := newTicketService(tickets, nil)
	now := time.Now()

	closed := tickets.add(domain.Ticket{Status: domain.TicketStatusClosed, ResolvedAt: &now, ClosedAt: &now})
	ticket, err := svc.Reopen(context.Background(), &manager, closed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Nil(t, ticket.ResolvedAt)
	assert.Nil(t, ticket.ClosedAt)

	resolved := tickets.add(domain.Ticket{Status: domain.TicketStatusResolved, ResolvedAt: &now})
	ticket, err = svc.Reopen(context.Background(), &manager, resolved.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
	assert.Nil(t, ticket.ResolvedAt)
}

func TestReopenOpenTicketFails(t *testing.T) {
	tickets := newFakeTicketRepo()
	seeded := tickets.add(domain.Ticket{Status: domain.TicketStatusInProgress})
	svc := newTicketService(tickets, nil)

	_, err := svc.Reopen(context.Background(), &manager, seeded.ID)
	assert.Equal(t, "CONFLICT", errCode(t, err))
}

func TestGetTicketNotFound(t *testing.T) {
	svc := newTicketService(newFakeTicketRepo(), nil)

	_, err := svc.GetTicket(context.Background(), "nope")
	assert.Equal(t, "NOT_FOUND", errCode(t, err))
}

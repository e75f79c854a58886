package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	nextID  int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func (f *fakeTicketRepo) add(ticket domain.Ticket) *domain.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ticket.ID == "" {
		f.nextID++
		ticket.ID = fmt.Sprintf("ticket-%d", f.nextID)
	}
	clone := ticket
	f.tickets[ticket.ID] = &clone
	return &clone
}

func (f *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ticket.ID = fmt.Sprintf("ticket-%d", f.nextID)
	now := time.Now()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	clone := *ticket
	f.tickets[ticket.ID] = &clone
	return nil
}

func (f *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.AssigneeID = ticket.AssigneeID
	stored.Status = ticket.Status
	stored.ResolvedAt = ticket.ResolvedAt
	stored.ClosedAt = ticket.ClosedAt
	stored.UpdatedAt = time.Now()
	return nil
}

func (f *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (f *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range f.tickets {
		if len(filter.Statuses) > 0 && !statusIn(filter.Statuses, ticket.Status) {
			continue
		}
		if filter.AssigneeIsNil && ticket.AssigneeID != nil {
			continue
		}
		if filter.HasDueDate && ticket.DueDate == nil {
			continue
		}
		if filter.CreatedBefore != nil && !ticket.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		if filter.UpdatedBefore != nil && !ticket.UpdatedAt.Before(*filter.UpdatedBefore) {
			continue
		}
		result = append(result, *ticket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeTicketRepo) CountOpenByAssignee(_ context.Context, assigneeID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, ticket := range f.tickets {
		if ticket.AssigneeID != nil && *ticket.AssigneeID == assigneeID && ticket.Status.IsOpen() {
			count++
		}
	}
	return count, nil
}

func statusIn(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type fakeUserRepo struct {
	users map[string]*domain.User
}

func newFakeUserRepo(users ...domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[string]*domain.User{}}
	for i := range users {
		clone := users[i]
		repo.users[clone.ID] = &clone
	}
	return repo
}

func (f *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUserRepo) ListActiveByRole(_ context.Context, roles ...domain.UserRole) ([]domain.User, error) {
	var result []domain.User
	for _, user := range f.users {
		if !user.Active {
			continue
		}
		for _, role := range roles {
			if user.Role == role {
				result = append(result, *user)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

type fakeRuleRepo struct {
	rules  []domain.EscalationRule
	nextID int
}

func (f *fakeRuleRepo) Create(_ context.Context, rule *domain.EscalationRule) error {
	f.nextID++
	rule.ID = fmt.Sprintf("rule-%d", f.nextID)
	rule.CreatedAt = time.Now()
	f.rules = append(f.rules, *rule)
	return nil
}

func (f *fakeRuleRepo) Update(_ context.Context, rule *domain.EscalationRule) error {
	for i := range f.rules {
		if f.rules[i].ID == rule.ID {
			f.rules[i] = *rule
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (f *fakeRuleRepo) GetByID(_ context.Context, id string) (*domain.EscalationRule, error) {
	for i := range f.rules {
		if f.rules[i].ID == id {
			clone := f.rules[i]
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeRuleRepo) List(_ context.Context) ([]domain.EscalationRule, error) {
	return append([]domain.EscalationRule(nil), f.rules...), nil
}

func (f *fakeRuleRepo) ListActive(_ context.Context) ([]domain.EscalationRule, error) {
	var result []domain.EscalationRule
	for _, rule := range f.rules {
		if rule.IsActive {
			result = append(result, rule)
		}
	}
	return result, nil
}

func (f *fakeRuleRepo) Delete(_ context.Context, id string) error {
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

type fakeEventRepo struct {
	events  []domain.EscalationEvent
	nextID  int
	failFor map[string]error
}

func (f *fakeEventRepo) Create(_ context.Context, event *domain.EscalationEvent) error {
	if f.failFor != nil {
		if err, ok := f.failFor[event.TicketID]; ok {
			return err
		}
	}
	f.nextID++
	event.ID = fmt.Sprintf("event-%d", f.nextID)
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeEventRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.EscalationEvent, error) {
	var result []domain.EscalationEvent
	for _, event := range f.events {
		if event.TicketID == ticketID {
			result = append(result, event)
		}
	}
	return result, nil
}

func (f *fakeEventRepo) LatestByTicket(_ context.Context, ticketID string) (*domain.EscalationEvent, error) {
	var latest *domain.EscalationEvent
	for i := range f.events {
		if f.events[i].TicketID != ticketID {
			continue
		}
		if latest == nil || !f.events[i].CreatedAt.Before(latest.CreatedAt) {
			latest = &f.events[i]
		}
	}
	if latest == nil {
		return nil, nil
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeEventRepo) ExistsSince(_ context.Context, ticketID, ruleID string, since time.Time) (bool, error) {
	for _, event := range f.events {
		if event.TicketID == ticketID && event.RuleID == ruleID && event.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

type recordedNotification struct {
	UserID string
	Type   string
}

type fakeNotifier struct {
	sent []recordedNotification
}

func (f *fakeNotifier) Send(_ context.Context, userID, notifType, _, _, _ string) error {
	f.sent = append(f.sent, recordedNotification{UserID: userID, Type: notifType})
	return nil
}

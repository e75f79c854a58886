package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// EscalationEventRepository stores the append-only escalation history.
// Events are never updated or deleted.
type EscalationEventRepository interface {
	Create(ctx context.Context, event *domain.EscalationEvent) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationEvent, error)
	LatestByTicket(ctx context.Context, ticketID string) (*domain.EscalationEvent, error)
	ExistsSince(ctx context.Context, ticketID, ruleID string, since time.Time) (bool, error)
}

type escalationEventRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationEventRepository instantiates the repository.
func NewEscalationEventRepository(pool *pgxpool.Pool) EscalationEventRepository {
	return &escalationEventRepository{pool: pool}
}

const eventColumns = `id, ticket_id, rule_id, from_level, to_level, escalated_by,
               escalated_to_user_id, escalated_to_role, reason, created_at`

func (r *escalationEventRepository) Create(ctx context.Context, event *domain.EscalationEvent) error {
	const query = `
        INSERT INTO escalation_events
            (ticket_id, rule_id, from_level, to_level, escalated_by,
             escalated_to_user_id, escalated_to_role, reason)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		event.TicketID,
		event.RuleID,
		event.FromLevel,
		event.ToLevel,
		event.EscalatedBy,
		event.EscalatedToUserID,
		event.EscalatedToRole,
		event.Reason,
	).Scan(&event.ID, &event.CreatedAt)
}

func (r *escalationEventRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.EscalationEvent, error) {
	const query = `SELECT ` + eventColumns + ` FROM escalation_events WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationEvent
	for rows.Next() {
		var event domain.EscalationEvent
		if err := scanEvent(rows.Scan, &event); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

func (r *escalationEventRepository) LatestByTicket(ctx context.Context, ticketID string) (*domain.EscalationEvent, error) {
	const query = `SELECT ` + eventColumns + ` FROM escalation_events WHERE ticket_id=$1 ORDER BY created_at DESC LIMIT 1`
	var event domain.EscalationEvent
	if err := scanEvent(r.pool.QueryRow(ctx, query, ticketID).Scan, &event); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *escalationEventRepository) ExistsSince(ctx context.Context, ticketID, ruleID string, since time.Time) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM escalation_events
            WHERE ticket_id=$1 AND rule_id=$2 AND created_at > $3)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, ticketID, ruleID, since).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func scanEvent(scan func(...any) error, event *domain.EscalationEvent) error {
	return scan(
		&event.ID,
		&event.TicketID,
		&event.RuleID,
		&event.FromLevel,
		&event.ToLevel,
		&event.EscalatedBy,
		&event.EscalatedToUserID,
		&event.EscalatedToRole,
		&event.Reason,
		&event.CreatedAt,
	)
}

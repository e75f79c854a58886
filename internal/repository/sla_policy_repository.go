package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// SlaPolicyRepository persists per-priority SLA policies.
type SlaPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SlaPolicy) error
	Update(ctx context.Context, policy *domain.SlaPolicy) error
	GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error)
	GetByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SlaPolicy, error)
	List(ctx context.Context) ([]domain.SlaPolicy, error)
	Delete(ctx context.Context, id string) error
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSlaPolicyRepository instantiates the repository.
func NewSlaPolicyRepository(pool *pgxpool.Pool) SlaPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

const policyColumns = `id, priority, response_hours, resolution_hours, is_active, created_at, updated_at`

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SlaPolicy) error {
	const query = `
        INSERT INTO sla_policies (priority, response_hours, resolution_hours, is_active)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		policy.Priority,
		policy.ResponseHours,
		policy.ResolutionHours,
		policy.IsActive,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *slaPolicyRepository) Update(ctx context.Context, policy *domain.SlaPolicy) error {
	const query = `
        UPDATE sla_policies
        SET response_hours=$1, resolution_hours=$2, is_active=$3, updated_at=NOW()
        WHERE id=$4`
	cmd, err := r.pool.Exec(ctx, query,
		policy.ResponseHours,
		policy.ResolutionHours,
		policy.IsActive,
		policy.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	const query = `SELECT ` + policyColumns + ` FROM sla_policies WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *slaPolicyRepository) GetByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	const query = `SELECT ` + policyColumns + ` FROM sla_policies WHERE priority=$1`
	return r.fetchSingle(ctx, query, priority)
}

func (r *slaPolicyRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.SlaPolicy, error) {
	var policy domain.SlaPolicy
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&policy.ID,
		&policy.Priority,
		&policy.ResponseHours,
		&policy.ResolutionHours,
		&policy.IsActive,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *slaPolicyRepository) List(ctx context.Context) ([]domain.SlaPolicy, error) {
	const query = `SELECT ` + policyColumns + ` FROM sla_policies ORDER BY priority ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SlaPolicy
	for rows.Next() {
		var policy domain.SlaPolicy
		if err := rows.Scan(
			&policy.ID,
			&policy.Priority,
			&policy.ResponseHours,
			&policy.ResolutionHours,
			&policy.IsActive,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

func (r *slaPolicyRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sla_policies WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

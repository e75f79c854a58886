package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// EscalationRuleRepository persists administrator-managed escalation rules.
type EscalationRuleRepository interface {
	Create(ctx context.Context, rule *domain.EscalationRule) error
	Update(ctx context.Context, rule *domain.EscalationRule) error
	GetByID(ctx context.Context, id string) (*domain.EscalationRule, error)
	List(ctx context.Context) ([]domain.EscalationRule, error)
	ListActive(ctx context.Context) ([]domain.EscalationRule, error)
	Delete(ctx context.Context, id string) error
}

type escalationRuleRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRuleRepository instantiates the repository.
func NewEscalationRuleRepository(pool *pgxpool.Pool) EscalationRuleRepository {
	return &escalationRuleRepository{pool: pool}
}

const ruleColumns = `id, name, priority, category_id, trigger_type, trigger_hours,
               escalation_level, target_type, target_role, target_user_id,
               notify_manager, is_active, created_at, updated_at`

func (r *escalationRuleRepository) Create(ctx context.Context, rule *domain.EscalationRule) error {
	const query = `
        INSERT INTO escalation_rules
            (name, priority, category_id, trigger_type, trigger_hours, escalation_level,
             target_type, target_role, target_user_id, notify_manager, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rule.Name,
		rule.Priority,
		rule.CategoryID,
		rule.TriggerType,
		rule.TriggerHours,
		rule.EscalationLevel,
		rule.TargetType,
		rule.TargetRole,
		rule.TargetUserID,
		rule.NotifyManager,
		rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *escalationRuleRepository) Update(ctx context.Context, rule *domain.EscalationRule) error {
	const query = `
        UPDATE escalation_rules
        SET name=$1, priority=$2, category_id=$3, trigger_type=$4, trigger_hours=$5,
            escalation_level=$6, target_type=$7, target_role=$8, target_user_id=$9,
            notify_manager=$10, is_active=$11, updated_at=NOW()
        WHERE id=$12`
	cmd, err := r.pool.Exec(ctx, query,
		rule.Name,
		rule.Priority,
		rule.CategoryID,
		rule.TriggerType,
		rule.TriggerHours,
		rule.EscalationLevel,
		rule.TargetType,
		rule.TargetRole,
		rule.TargetUserID,
		rule.NotifyManager,
		rule.IsActive,
		rule.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *escalationRuleRepository) GetByID(ctx context.Context, id string) (*domain.EscalationRule, error) {
	const query = `SELECT ` + ruleColumns + ` FROM escalation_rules WHERE id=$1`
	var rule domain.EscalationRule
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&rule.ID,
		&rule.Name,
		&rule.Priority,
		&rule.CategoryID,
		&rule.TriggerType,
		&rule.TriggerHours,
		&rule.EscalationLevel,
		&rule.TargetType,
		&rule.TargetRole,
		&rule.TargetUserID,
		&rule.NotifyManager,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *escalationRuleRepository) List(ctx context.Context) ([]domain.EscalationRule, error) {
	const query = `SELECT ` + ruleColumns + ` FROM escalation_rules ORDER BY created_at ASC`
	return r.queryRules(ctx, query)
}

func (r *escalationRuleRepository) ListActive(ctx context.Context) ([]domain.EscalationRule, error) {
	const query = `SELECT ` + ruleColumns + ` FROM escalation_rules WHERE is_active=TRUE ORDER BY created_at ASC`
	return r.queryRules(ctx, query)
}

func (r *escalationRuleRepository) queryRules(ctx context.Context, query string) ([]domain.EscalationRule, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationRule
	for rows.Next() {
		var rule domain.EscalationRule
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Priority,
			&rule.CategoryID,
			&rule.TriggerType,
			&rule.TriggerHours,
			&rule.EscalationLevel,
			&rule.TargetType,
			&rule.TargetRole,
			&rule.TargetUserID,
			&rule.NotifyManager,
			&rule.IsActive,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *escalationRuleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM escalation_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

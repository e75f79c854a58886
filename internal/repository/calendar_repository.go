package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// CalendarRepository stores the weekly working-hour rules and holidays.
type CalendarRepository interface {
	ListRules(ctx context.Context) ([]domain.BusinessHourRule, error)
	UpsertRule(ctx context.Context, rule *domain.BusinessHourRule) error
	ListHolidays(ctx context.Context) ([]domain.Holiday, error)
	CreateHoliday(ctx context.Context, holiday *domain.Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
}

type calendarRepository struct {
	pool *pgxpool.Pool
}

// NewCalendarRepository instantiates the repository.
func NewCalendarRepository(pool *pgxpool.Pool) CalendarRepository {
	return &calendarRepository{pool: pool}
}

func (r *calendarRepository) ListRules(ctx context.Context) ([]domain.BusinessHourRule, error) {
	const query = `
        SELECT day_of_week, start_time, end_time, is_working_day
        FROM business_hour_rules ORDER BY day_of_week ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.BusinessHourRule
	for rows.Next() {
		var rule domain.BusinessHourRule
		if err := rows.Scan(&rule.DayOfWeek, &rule.StartTime, &rule.EndTime, &rule.IsWorkingDay); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func (r *calendarRepository) UpsertRule(ctx context.Context, rule *domain.BusinessHourRule) error {
	const query = `
        INSERT INTO business_hour_rules (day_of_week, start_time, end_time, is_working_day)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (day_of_week)
        DO UPDATE SET start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time, is_working_day=EXCLUDED.is_working_day`
	_, err := r.pool.Exec(ctx, query, rule.DayOfWeek, rule.StartTime, rule.EndTime, rule.IsWorkingDay)
	return err
}

func (r *calendarRepository) ListHolidays(ctx context.Context) ([]domain.Holiday, error) {
	const query = `
        SELECT id, name, date, is_recurring, created_at
        FROM holidays ORDER BY date ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Holiday
	for rows.Next() {
		var holiday domain.Holiday
		if err := rows.Scan(&holiday.ID, &holiday.Name, &holiday.Date, &holiday.IsRecurring, &holiday.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, holiday)
	}
	return result, rows.Err()
}

func (r *calendarRepository) CreateHoliday(ctx context.Context, holiday *domain.Holiday) error {
	const query = `
        INSERT INTO holidays (name, date, is_recurring)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, holiday.Name, holiday.Date, holiday.IsRecurring).
		Scan(&holiday.ID, &holiday.CreatedAt)
}

func (r *calendarRepository) DeleteHoliday(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM holidays WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

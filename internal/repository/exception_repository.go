package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/Freeeeeet/availability_engine/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const exceptionColumns = `
	id, parent_pattern_id, exception_date, kind,
	modified_start_hour, modified_start_minute, modified_end_hour, modified_end_minute,
	modified_timezone, reason, created_by, created_at`

// ExceptionRepository хранит исключения шаблонов
type ExceptionRepository struct {
	*base.Repository
}

func NewExceptionRepository(pool *pgxpool.Pool) *ExceptionRepository {
	return &ExceptionRepository{Repository: base.NewRepository(pool)}
}

// Create вставляет исключение. Если на эту дату исключение уже есть, возвращает ErrDuplicate.
func (r *ExceptionRepository) Create(ctx context.Context, e *model.Exception) error {
	query := `
		INSERT INTO availability_exceptions (
			id, parent_pattern_id, exception_date, kind,
			modified_start_hour, modified_start_minute, modified_end_hour, modified_end_minute,
			modified_timezone, reason, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (parent_pattern_id, exception_date) DO NOTHING
		RETURNING created_at
	`

	startHour, startMin := clockToDB(e.ModifiedStartTime)
	endHour, endMin := clockToDB(e.ModifiedEndTime)

	err := r.QueryRow(
		ctx,
		query,
		e.ID,
		e.ParentPatternID,
		model.Date(e.ExceptionDate),
		string(e.Kind),
		startHour,
		startMin,
		endHour,
		endMin,
		e.ModifiedTimezone,
		e.Reason,
		e.CreatedBy,
	).Scan(&e.CreatedAt)

	// ON CONFLICT DO NOTHING не возвращает строку
	if base.IsNotFound(err) || base.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create exception: %w", err)
	}

	return nil
}

// GetByDate получает исключение шаблона на дату. Возвращает nil, nil если его нет.
func (r *ExceptionRepository) GetByDate(ctx context.Context, patternID uuid.UUID, date time.Time) (*model.Exception, error) {
	query := `SELECT ` + exceptionColumns + `
		FROM availability_exceptions
		WHERE parent_pattern_id = $1 AND exception_date = $2
	`

	e, err := scanException(r.QueryRow(ctx, query, patternID, model.Date(date)))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get exception by date: %w", err)
	}

	return e, nil
}

// ListInRange получает исключения шаблона в диапазоне дат включительно
func (r *ExceptionRepository) ListInRange(ctx context.Context, patternID uuid.UUID, from, to time.Time) ([]*model.Exception, error) {
	query := `SELECT ` + exceptionColumns + `
		FROM availability_exceptions
		WHERE parent_pattern_id = $1 AND exception_date BETWEEN $2 AND $3
		ORDER BY exception_date
	`

	rows, err := r.Query(ctx, query, patternID, model.Date(from), model.Date(to))
	if err != nil {
		return nil, fmt.Errorf("list exceptions in range: %w", err)
	}
	defer rows.Close()

	var exceptions []*model.Exception
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exception: %w", err)
		}
		exceptions = append(exceptions, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list exceptions in range: %w", err)
	}

	return exceptions, nil
}

// Delete удаляет одно исключение
func (r *ExceptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.ExecAffected(ctx, `DELETE FROM availability_exceptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete exception: %w", err)
	}
	return nil
}

// DeleteByPattern удаляет все исключения шаблона
func (r *ExceptionRepository) DeleteByPattern(ctx context.Context, patternID uuid.UUID) (int64, error) {
	affected, err := r.ExecAffected(ctx, `DELETE FROM availability_exceptions WHERE parent_pattern_id = $1`, patternID)
	if err != nil {
		return 0, fmt.Errorf("delete exceptions by pattern: %w", err)
	}
	return affected, nil
}

func scanException(row scanner) (*model.Exception, error) {
	var (
		e                   model.Exception
		kind                string
		startHour, startMin *int
		endHour, endMin     *int
	)

	err := row.Scan(
		&e.ID,
		&e.ParentPatternID,
		&e.ExceptionDate,
		&kind,
		&startHour,
		&startMin,
		&endHour,
		&endMin,
		&e.ModifiedTimezone,
		&e.Reason,
		&e.CreatedBy,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = model.ExceptionKind(kind)
	e.ExceptionDate = model.Date(e.ExceptionDate)
	e.ModifiedStartTime = clockFromDB(startHour, startMin)
	e.ModifiedEndTime = clockFromDB(endHour, endMin)

	return &e, nil
}

func clockToDB(c *model.Clock) (*int, *int) {
	if c == nil {
		return nil, nil
	}
	hour, minute := c.Hour, c.Minute
	return &hour, &minute
}

func clockFromDB(hour, minute *int) *model.Clock {
	if hour == nil || minute == nil {
		return nil
	}
	return &model.Clock{Hour: *hour, Minute: *minute}
}

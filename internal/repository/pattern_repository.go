package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/Freeeeeet/availability_engine/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const patternColumns = `
	id, owner_id, weekday, start_hour, start_minute, end_hour, end_minute, recurrence_weekdays,
	pattern_start_date, pattern_end_date, timezone, original_timezone, course_id, is_active,
	timezone_storage_format, created_at, updated_at`

// scanner общий интерфейс pgx.Row и pgx.Rows
type scanner interface {
	Scan(dest ...any) error
}

// PatternRepository хранит шаблоны регулярной доступности
type PatternRepository struct {
	*base.Repository
	logger *zap.Logger
}

// NewPatternRepository создаёт новый репозиторий
func NewPatternRepository(pool *pgxpool.Pool, logger *zap.Logger) *PatternRepository {
	return &PatternRepository{
		Repository: base.NewRepository(pool),
		logger:     logger,
	}
}

// Create создаёт новый шаблон
func (r *PatternRepository) Create(ctx context.Context, p *model.Pattern) error {
	query := `
		INSERT INTO availability_patterns (
			id, owner_id, weekday, start_hour, start_minute, end_hour, end_minute, recurrence_weekdays,
			pattern_start_date, pattern_end_date, timezone, original_timezone, course_id, is_active,
			timezone_storage_format
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`

	err := r.QueryRow(
		ctx,
		query,
		p.ID,
		p.OwnerID,
		int(p.Weekday),
		p.StartTime.Hour,
		p.StartTime.Minute,
		p.EndTime.Hour,
		p.EndTime.Minute,
		weekdaysToDB(p.RecurrenceWeekdays),
		p.PatternStartDate,
		p.PatternEndDate,
		p.Timezone,
		p.OriginalTimezone,
		p.CourseID,
		p.IsActive,
		storageFormatToDB(p.TimezoneStorageFormat),
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create pattern: %w", err)
	}

	return nil
}

// GetByID получает шаблон по ID. Возвращает nil, nil если шаблона нет.
func (r *PatternRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Pattern, error) {
	query := `SELECT ` + patternColumns + ` FROM availability_patterns WHERE id = $1`

	p, err := scanPattern(r.QueryRow(ctx, query, id))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pattern by id: %w", err)
	}

	return p, nil
}

// ListByOwner получает все шаблоны преподавателя
func (r *PatternRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Pattern, error) {
	query := `SELECT ` + patternColumns + `
		FROM availability_patterns
		WHERE owner_id = $1
		ORDER BY start_hour, start_minute, id
	`

	return r.list(ctx, "list patterns by owner", query, ownerID)
}

// ListNeedingMigration шаблоны без явного формата хранения времени
func (r *PatternRepository) ListNeedingMigration(ctx context.Context) ([]*model.Pattern, error) {
	query := `SELECT ` + patternColumns + `
		FROM availability_patterns
		WHERE timezone_storage_format IS NULL
		ORDER BY created_at
	`

	return r.list(ctx, "list patterns needing migration", query)
}

func (r *PatternRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Pattern, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var patterns []*model.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		patterns = append(patterns, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return patterns, nil
}

// Update обновляет шаблон целиком
func (r *PatternRepository) Update(ctx context.Context, p *model.Pattern) error {
	query := `
		UPDATE availability_patterns
		SET weekday = $2, start_hour = $3, start_minute = $4, end_hour = $5, end_minute = $6,
			recurrence_weekdays = $7, pattern_start_date = $8, pattern_end_date = $9,
			timezone = $10, original_timezone = $11, course_id = $12, is_active = $13,
			timezone_storage_format = $14, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.QueryRow(
		ctx,
		query,
		p.ID,
		int(p.Weekday),
		p.StartTime.Hour,
		p.StartTime.Minute,
		p.EndTime.Hour,
		p.EndTime.Minute,
		weekdaysToDB(p.RecurrenceWeekdays),
		p.PatternStartDate,
		p.PatternEndDate,
		p.Timezone,
		p.OriginalTimezone,
		p.CourseID,
		p.IsActive,
		storageFormatToDB(p.TimezoneStorageFormat),
	).Scan(&p.UpdatedAt)

	if err != nil {
		return fmt.Errorf("update pattern: %w", err)
	}

	return nil
}

// Delete удаляет шаблон вместе с его исключениями одной транзакцией
func (r *PatternRepository) Delete(ctx context.Context, id uuid.UUID) error {
	var exceptions, affected int64

	err := r.InTx(ctx, func(q base.Querier) error {
		var err error
		exceptions, err = base.ExecAffected(ctx, q, `DELETE FROM availability_exceptions WHERE parent_pattern_id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete exceptions: %w", err)
		}
		affected, err = base.ExecAffected(ctx, q, `DELETE FROM availability_patterns WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}

	if affected == 0 {
		r.logger.Debug("Pattern already deleted", zap.String("pattern_id", id.String()))
		return nil
	}

	r.logger.Info("Pattern deleted",
		zap.String("pattern_id", id.String()),
		zap.Int64("exceptions_removed", exceptions),
	)

	return nil
}

func scanPattern(row scanner) (*model.Pattern, error) {
	var (
		p                   model.Pattern
		weekday             int
		startHour, startMin int
		endHour, endMin     int
		weekdays            []int32
		startDate, endDate  *time.Time
		storageFormat       *string
	)

	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&weekday,
		&startHour,
		&startMin,
		&endHour,
		&endMin,
		&weekdays,
		&startDate,
		&endDate,
		&p.Timezone,
		&p.OriginalTimezone,
		&p.CourseID,
		&p.IsActive,
		&storageFormat,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Weekday = model.Weekday(weekday)
	p.StartTime = model.Clock{Hour: startHour, Minute: startMin}
	p.EndTime = model.Clock{Hour: endHour, Minute: endMin}
	p.RecurrenceWeekdays = weekdaysFromDB(weekdays)
	p.PatternStartDate = normalizeDate(startDate)
	p.PatternEndDate = normalizeDate(endDate)
	if storageFormat != nil {
		p.TimezoneStorageFormat = model.TimezoneStorageFormat(*storageFormat)
	}

	return &p, nil
}

func weekdaysToDB(set model.WeekdaySet) []int32 {
	out := make([]int32, 0, len(set))
	for _, d := range set {
		out = append(out, int32(d))
	}
	return out
}

func weekdaysFromDB(days []int32) model.WeekdaySet {
	ints := make([]int, 0, len(days))
	for _, d := range days {
		ints = append(ints, int(d))
	}
	return model.WeekdaySetFromInts(ints)
}

func storageFormatToDB(f model.TimezoneStorageFormat) *string {
	if f == model.StorageFormatLegacy {
		return nil
	}
	s := string(f)
	return &s
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := model.Date(*t)
	return &d
}

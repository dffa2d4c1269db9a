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

const slotColumns = `
	id, owner_id, parent_pattern_id, specific_date, start_hour, start_minute, end_hour, end_minute,
	timezone, course_id, is_active, created_at, updated_at`

// SlotRepository читает и правит материализованные слоты.
// Создаёт их другая подсистема.
type SlotRepository struct {
	*base.Repository
}

func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт слот. Используется в тестах и при импорте.
func (r *SlotRepository) Create(ctx context.Context, slot *model.MaterializedSlot) error {
	query := `
		INSERT INTO materialized_slots (
			id, owner_id, parent_pattern_id, specific_date, start_hour, start_minute, end_hour, end_minute,
			timezone, course_id, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		slot.ID,
		slot.OwnerID,
		slot.ParentPatternID,
		model.Date(slot.SpecificDate),
		slot.StartTime.Hour,
		slot.StartTime.Minute,
		slot.EndTime.Hour,
		slot.EndTime.Minute,
		slot.Timezone,
		slot.CourseID,
		slot.IsActive,
	).Scan(&slot.CreatedAt, &slot.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}

	return nil
}

// GetByID получает слот по ID
func (r *SlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.MaterializedSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM materialized_slots WHERE id = $1`

	slot, err := scanSlot(r.QueryRow(ctx, query, id))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get slot by id: %w", err)
	}

	return slot, nil
}

// ListByOwner получает все слоты преподавателя в диапазоне дат включительно
func (r *SlotRepository) ListByOwner(ctx context.Context, ownerID int64, from, to time.Time) ([]*model.MaterializedSlot, error) {
	query := `SELECT ` + slotColumns + `
		FROM materialized_slots
		WHERE owner_id = $1
		  AND specific_date BETWEEN $2 AND $3
		ORDER BY specific_date, start_hour, start_minute
	`

	return r.list(ctx, "list slots by owner", query, ownerID, model.Date(from), model.Date(to))
}

// ListByParent получает дочерние слоты шаблона. since != nil ограничивает выборку датами не раньше since.
func (r *SlotRepository) ListByParent(ctx context.Context, patternID uuid.UUID, since *time.Time) ([]*model.MaterializedSlot, error) {
	if since == nil {
		query := `SELECT ` + slotColumns + `
			FROM materialized_slots
			WHERE parent_pattern_id = $1
			ORDER BY specific_date
		`
		return r.list(ctx, "list slots by parent", query, patternID)
	}

	query := `SELECT ` + slotColumns + `
		FROM materialized_slots
		WHERE parent_pattern_id = $1
		  AND specific_date >= $2
		ORDER BY specific_date
	`
	return r.list(ctx, "list slots by parent", query, patternID, model.Date(*since))
}

// ListByParentAndDate получает дочерние слоты шаблона на дату
func (r *SlotRepository) ListByParentAndDate(ctx context.Context, patternID uuid.UUID, date time.Time) ([]*model.MaterializedSlot, error) {
	query := `SELECT ` + slotColumns + `
		FROM materialized_slots
		WHERE parent_pattern_id = $1
		  AND specific_date = $2
	`

	return r.list(ctx, "list slots by parent and date", query, patternID, model.Date(date))
}

// CountByParent количество дочерних слотов шаблона
func (r *SlotRepository) CountByParent(ctx context.Context, patternID uuid.UUID) (int, error) {
	var count int
	err := r.QueryRow(ctx, `SELECT COUNT(*) FROM materialized_slots WHERE parent_pattern_id = $1`, patternID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count slots by parent: %w", err)
	}
	return count, nil
}

// Update обновляет время, курс и активность слота
func (r *SlotRepository) Update(ctx context.Context, slot *model.MaterializedSlot) error {
	query := `
		UPDATE materialized_slots
		SET start_hour = $2, start_minute = $3, end_hour = $4, end_minute = $5,
			timezone = $6, course_id = $7, is_active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.QueryRow(
		ctx, query,
		slot.ID,
		slot.StartTime.Hour,
		slot.StartTime.Minute,
		slot.EndTime.Hour,
		slot.EndTime.Minute,
		slot.Timezone,
		slot.CourseID,
		slot.IsActive,
	).Scan(&slot.UpdatedAt)

	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}

	return nil
}

// Delete удаляет слот
func (r *SlotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.ExecAffected(ctx, `DELETE FROM materialized_slots WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

func (r *SlotRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.MaterializedSlot, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var slots []*model.MaterializedSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return slots, nil
}

func scanSlot(row scanner) (*model.MaterializedSlot, error) {
	var (
		slot                model.MaterializedSlot
		startHour, startMin int
		endHour, endMin     int
	)

	err := row.Scan(
		&slot.ID,
		&slot.OwnerID,
		&slot.ParentPatternID,
		&slot.SpecificDate,
		&startHour,
		&startMin,
		&endHour,
		&endMin,
		&slot.Timezone,
		&slot.CourseID,
		&slot.IsActive,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	slot.SpecificDate = model.Date(slot.SpecificDate)
	slot.StartTime = model.Clock{Hour: startHour, Minute: startMin}
	slot.EndTime = model.Clock{Hour: endHour, Minute: endMin}

	return &slot, nil
}

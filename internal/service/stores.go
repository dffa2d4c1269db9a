package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/google/uuid"
)

// Хранилища, которыми пользуется движок. Отсутствующая строка: (nil, nil).
// Реализации: internal/repository (PostgreSQL) и internal/repository/memory.

type PatternStore interface {
	Create(ctx context.Context, p *model.Pattern) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Pattern, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*model.Pattern, error)
	ListNeedingMigration(ctx context.Context) ([]*model.Pattern, error)
	Update(ctx context.Context, p *model.Pattern) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExceptionStore Create возвращает repository.ErrDuplicate при повторе даты
type ExceptionStore interface {
	Create(ctx context.Context, e *model.Exception) error
	GetByDate(ctx context.Context, patternID uuid.UUID, date time.Time) (*model.Exception, error)
	ListInRange(ctx context.Context, patternID uuid.UUID, from, to time.Time) ([]*model.Exception, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByPattern(ctx context.Context, patternID uuid.UUID) (int64, error)
}

type SlotStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.MaterializedSlot, error)
	ListByOwner(ctx context.Context, ownerID int64, from, to time.Time) ([]*model.MaterializedSlot, error)
	ListByParent(ctx context.Context, patternID uuid.UUID, since *time.Time) ([]*model.MaterializedSlot, error)
	ListByParentAndDate(ctx context.Context, patternID uuid.UUID, date time.Time) ([]*model.MaterializedSlot, error)
	CountByParent(ctx context.Context, patternID uuid.UUID) (int, error)
	Update(ctx context.Context, slot *model.MaterializedSlot) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// BookingStore Create возвращает repository.ErrDuplicate если момент уже занят
type BookingStore interface {
	Create(ctx context.Context, b *model.Booking) error
	ListByRef(ctx context.Context, ref model.AvailabilityRef) ([]*model.Booking, error)
}

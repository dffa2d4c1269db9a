package service

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/Freeeeeet/availability_engine/internal/repository"
	"github.com/Freeeeeet/availability_engine/internal/tzconv"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"go.uber.org/zap"
)

// ExceptionResolver читает и создаёт исключения шаблонов.
// На одну дату шаблона приходится не больше одного исключения.
type ExceptionResolver struct {
	exceptions ExceptionStore
	slots      SlotStore
	conflicts  *ConflictChecker
	logger     *zap.Logger
}

func NewExceptionResolver(exceptions ExceptionStore, slots SlotStore, conflicts *ConflictChecker, logger *zap.Logger) *ExceptionResolver {
	return &ExceptionResolver{
		exceptions: exceptions,
		slots:      slots,
		conflicts:  conflicts,
		logger:     logger,
	}
}

// IsDeleted есть ли на дату исключение-удаление
func (r *ExceptionResolver) IsDeleted(ctx context.Context, patternID uuid.UUID, date time.Time) (bool, error) {
	exc, err := r.exceptions.GetByDate(ctx, patternID, date)
	if err != nil {
		return false, storageErr("get exception", err)
	}
	return exc != nil && exc.Kind == model.ExceptionDeleted, nil
}

// GetOverride переопределение времени на дату, если есть modified-исключение
func (r *ExceptionResolver) GetOverride(ctx context.Context, patternID uuid.UUID, date time.Time) (mo.Option[model.Override], error) {
	exc, err := r.exceptions.GetByDate(ctx, patternID, date)
	if err != nil {
		return mo.None[model.Override](), storageErr("get exception", err)
	}
	if exc == nil {
		return mo.None[model.Override](), nil
	}
	return mo.TupleToOption(exc.Override()), nil
}

// AddDeletion пропускает вхождение шаблона на дату.
// Если исключение на дату уже есть, возвращает его вместе с ErrAlreadyExcepted: повтор безопасен.
// Материализованные слоты шаблона на эту дату удаляются, если их никто не забронировал.
func (r *ExceptionResolver) AddDeletion(ctx context.Context, patternID uuid.UUID, date time.Time, createdBy int64, reason string) (*model.Exception, error) {
	exc := &model.Exception{
		ID:              uuid.New(),
		ParentPatternID: patternID,
		ExceptionDate:   model.Date(date),
		Kind:            model.ExceptionDeleted,
		Reason:          reason,
		CreatedBy:       createdBy,
	}

	existing, err := r.insert(ctx, exc)
	if err != nil {
		return existing, err
	}

	r.logger.Info("Occurrence deleted",
		zap.String("pattern_id", patternID.String()),
		zap.String("date", model.FormatDate(date)),
		zap.Int64("created_by", createdBy),
	)

	if err := r.removeSlotsOn(ctx, patternID, date); err != nil {
		return exc, err
	}

	return exc, nil
}

// AddModification переносит вхождение шаблона на дату на другое время.
// Повтор даты: существующее исключение и ErrAlreadyExcepted.
func (r *ExceptionResolver) AddModification(ctx context.Context, patternID uuid.UUID, date time.Time, override model.Override, createdBy int64, reason string) (*model.Exception, error) {
	if override.Timezone != "" && !tzconv.IsValidTimezone(override.Timezone) {
		return nil, &ValidationError{Field: "Timezone", Message: "must be a valid IANA timezone"}
	}
	if model.SpanMinutes(override.StartTime, override.EndTime) == model.MinutesPerDay {
		return nil, &ValidationError{Field: "EndTime", Message: "must differ from StartTime"}
	}

	start, end := override.StartTime, override.EndTime
	exc := &model.Exception{
		ID:                uuid.New(),
		ParentPatternID:   patternID,
		ExceptionDate:     model.Date(date),
		Kind:              model.ExceptionModified,
		ModifiedStartTime: &start,
		ModifiedEndTime:   &end,
		Reason:            reason,
		CreatedBy:         createdBy,
	}
	if override.Timezone != "" {
		tz := override.Timezone
		exc.ModifiedTimezone = &tz
	}

	existing, err := r.insert(ctx, exc)
	if err != nil {
		return existing, err
	}

	r.logger.Info("Occurrence modified",
		zap.String("pattern_id", patternID.String()),
		zap.String("date", model.FormatDate(date)),
		zap.String("start_time", start.String()),
		zap.String("end_time", end.String()),
		zap.String("timezone", override.Timezone),
	)

	return exc, nil
}

// insert сохраняет исключение; при повторе даты возвращает существующее
func (r *ExceptionResolver) insert(ctx context.Context, exc *model.Exception) (*model.Exception, error) {
	err := r.exceptions.Create(ctx, exc)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, storageErr("create exception", err)
	}

	existing, err := r.exceptions.GetByDate(ctx, exc.ParentPatternID, exc.ExceptionDate)
	if err != nil {
		return nil, storageErr("get exception", err)
	}

	r.logger.Debug("Date already has an exception",
		zap.String("pattern_id", exc.ParentPatternID.String()),
		zap.String("date", model.FormatDate(exc.ExceptionDate)),
	)

	return existing, ErrAlreadyExcepted
}

func (r *ExceptionResolver) removeSlotsOn(ctx context.Context, patternID uuid.UUID, date time.Time) error {
	slots, err := r.slots.ListByParentAndDate(ctx, patternID, date)
	if err != nil {
		return storageErr("list slots", err)
	}

	for _, slot := range slots {
		editable, err := r.conflicts.IsEditable(ctx, slot.Ref())
		if err != nil {
			return err
		}
		if !editable {
			r.logger.Info("Booked slot kept on deleted date",
				zap.String("slot_id", slot.ID.String()),
				zap.String("date", model.FormatDate(date)),
			)
			continue
		}
		if err := r.slots.Delete(ctx, slot.ID); err != nil {
			return storageErr("delete slot", err)
		}
	}

	return nil
}

// Load загружает исключения шаблона на диапазон дат одним запросом
func (r *ExceptionResolver) Load(ctx context.Context, patternID uuid.UUID, from, to time.Time) (*ExceptionSet, error) {
	exceptions, err := r.exceptions.ListInRange(ctx, patternID, from, to)
	if err != nil {
		return nil, storageErr("list exceptions", err)
	}
	return NewExceptionSet(exceptions), nil
}

// ExceptionSet исключения одного шаблона по датам
type ExceptionSet struct {
	byDate map[string]*model.Exception
}

func NewExceptionSet(exceptions []*model.Exception) *ExceptionSet {
	set := &ExceptionSet{byDate: make(map[string]*model.Exception, len(exceptions))}
	for _, e := range exceptions {
		set.byDate[model.FormatDate(e.ExceptionDate)] = e
	}
	return set
}

// Get исключение на дату
func (s *ExceptionSet) Get(date time.Time) (*model.Exception, bool) {
	e, ok := s.byDate[model.FormatDate(date)]
	return e, ok
}

func (s *ExceptionSet) IsDeleted(date time.Time) bool {
	e, ok := s.Get(date)
	return ok && e.Kind == model.ExceptionDeleted
}

func (s *ExceptionSet) Override(date time.Time) mo.Option[model.Override] {
	e, ok := s.Get(date)
	if !ok {
		return mo.None[model.Override]()
	}
	return mo.TupleToOption(e.Override())
}

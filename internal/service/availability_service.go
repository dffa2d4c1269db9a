package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/calendar"
	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/Freeeeeet/availability_engine/internal/recurrence"
	"github.com/Freeeeeet/availability_engine/internal/repository"
	"github.com/Freeeeeet/availability_engine/internal/tzconv"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"go.uber.org/zap"
)

// Stores хранилища, с которыми работает движок
type Stores struct {
	Patterns   PatternStore
	Exceptions ExceptionStore
	Slots      SlotStore
	Bookings   BookingStore
}

// AvailabilityService операции движка доступности для внешнего слоя
type AvailabilityService struct {
	patterns   PatternStore
	exceptions ExceptionStore
	slots      SlotStore
	bookings   BookingStore
	converter  *tzconv.Converter
	generator  *recurrence.Generator
	resolver   *ExceptionResolver
	conflicts  *ConflictChecker
	mutator    *SeriesMutator
	validator  *Validator
	now        func() time.Time
	logger     *zap.Logger
}

// NewAvailabilityService собирает движок. now == nil означает time.Now.
func NewAvailabilityService(
	stores Stores,
	converter *tzconv.Converter,
	generator *recurrence.Generator,
	now func() time.Time,
	logger *zap.Logger,
) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	validator := NewValidator(logger)
	conflicts := NewConflictChecker(stores.Bookings, now, logger)
	resolver := NewExceptionResolver(stores.Exceptions, stores.Slots, conflicts, logger)
	mutator := NewSeriesMutator(
		stores.Patterns,
		stores.Exceptions,
		stores.Slots,
		converter,
		generator,
		resolver,
		conflicts,
		validator,
		now,
		logger,
	)

	return &AvailabilityService{
		patterns:   stores.Patterns,
		exceptions: stores.Exceptions,
		slots:      stores.Slots,
		bookings:   stores.Bookings,
		converter:  converter,
		generator:  generator,
		resolver:   resolver,
		conflicts:  conflicts,
		mutator:    mutator,
		validator:  validator,
		now:        now,
		logger:     logger,
	}
}

// Resolver исключения шаблонов
func (s *AvailabilityService) Resolver() *ExceptionResolver {
	return s.resolver
}

// Conflicts проверка бронирований
func (s *AvailabilityService) Conflicts() *ConflictChecker {
	return s.conflicts
}

// Mutator изменения серий и вхождений
func (s *AvailabilityService) Mutator() *SeriesMutator {
	return s.mutator
}

// CreatePattern создаёт шаблон.
// Времена переводятся в каноническую зону на дату начала шаблона (или сегодня).
// Если при переводе начало уходит на другой календарный день, дни недели и границы
// сдвигаются туда же: вхождение остаётся в том же реальном моменте.
func (s *AvailabilityService) CreatePattern(ctx context.Context, req CreatePatternRequest) (*model.Pattern, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	start, _ := model.ParseClock(req.StartTime)
	end, _ := model.ParseClock(req.EndTime)
	if err := checkTimeRange(start, end); err != nil {
		return nil, err
	}

	startDate, endDate, err := parseBoundaries(req.PatternStartDate, req.PatternEndDate)
	if err != nil {
		return nil, err
	}

	weekday := model.Weekday(req.Weekday)
	weekdays := model.WeekdaySetFromInts(req.RecurrenceWeekdays)
	if len(weekdays) == 0 {
		weekdays = model.NewWeekdaySet(weekday)
	}

	loc, err := s.converter.Location(req.Timezone)
	if err != nil {
		return nil, &ValidationError{Field: "Timezone", Message: err.Error()}
	}
	ref := model.DateIn(s.now(), loc)
	if startDate != nil {
		ref = *startDate
	}

	shift, err := s.converter.DayShift(start, req.Timezone, ref)
	if err != nil {
		return nil, &ValidationError{Field: "Timezone", Message: err.Error()}
	}

	p := &model.Pattern{
		ID:                    uuid.New(),
		OwnerID:               req.OwnerID,
		Weekday:               weekday,
		StartTime:             s.converter.ToCanonical(start, req.Timezone, ref),
		EndTime:               s.converter.ToCanonical(end, req.Timezone, ref),
		RecurrenceWeekdays:    weekdays,
		PatternStartDate:      startDate,
		PatternEndDate:        endDate,
		Timezone:              s.converter.CanonicalName(),
		OriginalTimezone:      req.Timezone,
		CourseID:              req.CourseID,
		IsActive:              true,
		TimezoneStorageFormat: model.StorageFormatCanonical,
	}
	if shift != 0 {
		shiftPatternDays(p, shift)
	}

	if err := s.patterns.Create(ctx, p); err != nil {
		return nil, storageErr("create pattern", err)
	}

	s.logger.Info("Pattern created",
		zap.String("pattern_id", p.ID.String()),
		zap.Int64("owner_id", p.OwnerID),
		zap.String("start_time", p.StartTime.String()),
		zap.String("end_time", p.EndTime.String()),
		zap.Ints("weekdays", p.RecurrenceWeekdays.Ints()),
		zap.String("original_timezone", p.OriginalTimezone),
		zap.Int("day_shift", shift),
	)

	return p, nil
}

func parseBoundaries(startRaw, endRaw string) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if startRaw != "" {
		d, err := model.ParseDate(startRaw)
		if err != nil {
			return nil, nil, &ValidationError{Field: "PatternStartDate", Message: err.Error()}
		}
		start = &d
	}
	if endRaw != "" {
		d, err := model.ParseDate(endRaw)
		if err != nil {
			return nil, nil, &ValidationError{Field: "PatternEndDate", Message: err.Error()}
		}
		end = &d
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, &ValidationError{Field: "PatternEndDate", Message: "must not be before PatternStartDate"}
	}
	return start, end, nil
}

// GetPattern получает шаблон по ID
func (s *AvailabilityService) GetPattern(ctx context.Context, id uuid.UUID) (*model.Pattern, error) {
	p, err := s.patterns.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("get pattern", err)
	}
	if p == nil {
		return nil, notFound("pattern", id)
	}
	return p, nil
}

// ListQuery запрос списка вхождений. Даты окна читаются в зоне отображения.
type ListQuery struct {
	OwnerID         int64
	StartDate       time.Time
	EndDate         time.Time
	PatternID       *uuid.UUID
	DisplayTimezone string // пусто: каноническая
}

// ListOccurrences вхождения шаблонов и материализованные слоты преподавателя в окне,
// отсортированные по моменту начала. Каждое вхождение несёт каноническое время,
// время в зоне отображения и флаги конфликтов.
func (s *AvailabilityService) ListOccurrences(ctx context.Context, q ListQuery) ([]model.Occurrence, error) {
	displayTZ := q.DisplayTimezone
	if displayTZ == "" {
		displayTZ = s.converter.CanonicalName()
	}
	displayLoc, err := s.converter.Location(displayTZ)
	if err != nil {
		return nil, &ValidationError{Field: "DisplayTimezone", Message: err.Error()}
	}

	windowStart, windowEnd := model.Date(q.StartDate), model.Date(q.EndDate)
	if err := s.generator.CheckWindow(windowStart, windowEnd); err != nil {
		return nil, &ValidationError{Field: "EndDate", Message: err.Error()}
	}
	genStart := model.AddDays(windowStart, -recurrence.DisplaySlackDays)
	genEnd := model.AddDays(windowEnd, recurrence.DisplaySlackDays)

	slots, err := s.slots.ListByOwner(ctx, q.OwnerID, genStart, genEnd)
	if err != nil {
		return nil, storageErr("list slots", err)
	}

	// дата уже материализована слотом: вхождение шаблона на неё не выдаётся
	materialized := make(map[string]bool, len(slots))
	for _, slot := range slots {
		if slot.ParentPatternID != nil {
			materialized[model.OccurrenceID(*slot.ParentPatternID, slot.SpecificDate)] = true
		}
	}

	patterns, err := s.patterns.ListByOwner(ctx, q.OwnerID)
	if err != nil {
		return nil, storageErr("list patterns", err)
	}

	var out []model.Occurrence
	inWindow := func(occ *model.Occurrence) bool {
		d := occ.Display.Date
		return !d.Before(windowStart) && !d.After(windowEnd)
	}

	for _, p := range patterns {
		if q.PatternID != nil && p.ID != *q.PatternID {
			continue
		}
		if !p.IsActive {
			continue
		}
		if p.NeedsMigration() {
			s.logger.Warn("Skipping pattern with unknown timezone storage format",
				zap.String("pattern_id", p.ID.String()),
			)
			continue
		}

		exceptions, err := s.resolver.Load(ctx, p.ID, genStart, genEnd)
		if err != nil {
			return nil, err
		}
		seq, err := s.generator.Generate(p, genStart, genEnd, exceptions)
		if err != nil {
			return nil, fmt.Errorf("generate occurrences: %w", err)
		}
		bookings, err := s.bookings.ListByRef(ctx, p.Ref())
		if err != nil {
			return nil, storageErr("list bookings", err)
		}

		for occ := range seq {
			if materialized[occ.ID] {
				continue
			}
			s.display(&occ, displayTZ, displayLoc)
			if !inWindow(&occ) {
				continue
			}
			s.conflicts.Annotate(&occ, s.conflicts.ClassifyOccurrence(occ, bookings))
			out = append(out, occ)
		}
	}

	for _, slot := range slots {
		if !slot.IsActive {
			continue
		}
		if q.PatternID != nil && (slot.ParentPatternID == nil || *slot.ParentPatternID != *q.PatternID) {
			continue
		}

		occ, err := s.slotOccurrence(slot)
		if err != nil {
			s.logger.Warn("Skipping slot with invalid timezone",
				zap.String("slot_id", slot.ID.String()),
				zap.String("timezone", slot.Timezone),
				zap.Error(err),
			)
			continue
		}
		s.display(&occ, displayTZ, displayLoc)
		if !inWindow(&occ) {
			continue
		}

		report, err := s.conflicts.CheckConflicts(ctx, slot.Ref())
		if err != nil {
			return nil, err
		}
		s.conflicts.Annotate(&occ, report)
		out = append(out, occ)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (s *AvailabilityService) slotOccurrence(slot *model.MaterializedSlot) (model.Occurrence, error) {
	loc, err := s.converter.Location(slot.Timezone)
	if err != nil {
		return model.Occurrence{}, err
	}

	startsAt := slot.StartTime.On(slot.SpecificDate, loc)
	occ := model.Occurrence{
		ID:        slot.ID.String(),
		Source:    slot.Ref(),
		OwnerID:   slot.OwnerID,
		CourseID:  slot.CourseID,
		Date:      slot.SpecificDate,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		Timezone:  slot.Timezone,
		StartsAt:  startsAt,
		EndsAt:    startsAt.Add(time.Duration(slot.DurationMinutes()) * time.Minute),
	}
	if slot.ParentPatternID != nil {
		occ.PatternID = *slot.ParentPatternID
	}
	return occ, nil
}

func (s *AvailabilityService) display(occ *model.Occurrence, tz string, loc *time.Location) {
	start := occ.StartsAt.In(loc)
	occ.Display = &model.DisplayTime{
		Timezone:  tz,
		Date:      model.Date(start),
		StartTime: model.ClockOf(start),
		EndTime:   model.ClockOf(occ.EndsAt.In(loc)),
	}
}

// UpdateSeries меняет шаблон и его дочерние слоты
func (s *AvailabilityService) UpdateSeries(ctx context.Context, patternID uuid.UUID, fields SeriesFields, scope Scope, actorID int64) (*MutationResult, error) {
	if scope != ScopeFuture && scope != ScopeAll {
		return nil, &ValidationError{Field: "Scope", Message: "must be future or all"}
	}
	return s.mutator.Mutate(ctx, MutationRequest{
		Target:  model.PatternRef(patternID),
		Scope:   scope,
		Action:  ActionUpdate,
		Fields:  fields,
		ActorID: actorID,
	})
}

// DeleteSeries удаляет серию начиная с сегодня (future) или целиком (all)
func (s *AvailabilityService) DeleteSeries(ctx context.Context, patternID uuid.UUID, scope Scope, actorID int64) (*MutationResult, error) {
	if scope != ScopeFuture && scope != ScopeAll {
		return nil, &ValidationError{Field: "Scope", Message: "must be future or all"}
	}
	return s.mutator.Mutate(ctx, MutationRequest{
		Target:  model.PatternRef(patternID),
		Scope:   scope,
		Action:  ActionDelete,
		ActorID: actorID,
		Reason:  "series deleted",
	})
}

// DeleteOccurrence удаляет одно вхождение: синтетический id шаблона или id слота
func (s *AvailabilityService) DeleteOccurrence(ctx context.Context, occurrenceID string, actorID int64, reason string) (*MutationResult, error) {
	req, err := singleRequest(occurrenceID)
	if err != nil {
		return nil, err
	}
	req.Action = ActionDelete
	req.ActorID = actorID
	req.Reason = reason
	req.Replace = true
	return s.mutator.Mutate(ctx, req)
}

// ModifyOccurrence переносит одно вхождение на другое время
func (s *AvailabilityService) ModifyOccurrence(ctx context.Context, occurrenceID string, override OverrideFields, actorID int64, reason string) (*MutationResult, error) {
	if err := s.validator.Struct(override); err != nil {
		return nil, err
	}

	req, err := singleRequest(occurrenceID)
	if err != nil {
		return nil, err
	}
	req.Action = ActionUpdate
	req.Fields = override.seriesFields()
	req.ActorID = actorID
	req.Reason = reason
	req.Replace = true
	return s.mutator.Mutate(ctx, req)
}

func singleRequest(occurrenceID string) (MutationRequest, error) {
	if patternID, date, err := model.ParseOccurrenceID(occurrenceID); err == nil {
		return MutationRequest{
			Target: model.PatternRef(patternID),
			Date:   mo.Some(date),
			Scope:  ScopeSingle,
		}, nil
	}

	slotID, err := uuid.Parse(occurrenceID)
	if err != nil {
		return MutationRequest{}, &ValidationError{Field: "OccurrenceID", Message: "must be a slot id or {patternId}_{YYYY-MM-DD}"}
	}
	return MutationRequest{Target: model.SlotRef(slotID), Scope: ScopeSingle}, nil
}

func (o OverrideFields) seriesFields() SeriesFields {
	return SeriesFields{
		StartTime: mo.Some(o.StartTime),
		EndTime:   mo.Some(o.EndTime),
		Timezone:  o.Timezone,
	}
}

// AddExceptionRequest исключение на одну дату шаблона
type AddExceptionRequest struct {
	PatternID uuid.UUID
	Date      time.Time
	Kind      model.ExceptionKind
	Override  *OverrideFields // обязателен для modified
	CreatedBy int64
	Reason    string
}

// ExceptionResult id исключения. AlreadyExcepted: на дату исключение уже было, возвращено оно.
type ExceptionResult struct {
	ExceptionID     uuid.UUID
	AlreadyExcepted bool
}

// AddException добавляет исключение. Повтор даты не ошибка.
// Вхождение с активным бронированием не трогается: ConflictError.
func (s *AvailabilityService) AddException(ctx context.Context, req AddExceptionRequest) (*ExceptionResult, error) {
	mutation := MutationRequest{
		Target:  model.PatternRef(req.PatternID),
		Date:    mo.Some(req.Date),
		Scope:   ScopeSingle,
		ActorID: req.CreatedBy,
		Reason:  req.Reason,
	}

	switch req.Kind {
	case model.ExceptionDeleted:
		mutation.Action = ActionDelete
	case model.ExceptionModified:
		if req.Override == nil {
			return nil, &ValidationError{Field: "Override", Message: "is required for a modified exception"}
		}
		if err := s.validator.Struct(*req.Override); err != nil {
			return nil, err
		}
		mutation.Action = ActionUpdate
		mutation.Fields = req.Override.seriesFields()
	default:
		return nil, &ValidationError{Field: "Kind", Message: "must be deleted or modified"}
	}

	result, err := s.mutator.Mutate(ctx, mutation)
	if err != nil {
		return nil, err
	}

	out := &ExceptionResult{AlreadyExcepted: result.AlreadyExcepted}
	if result.Exception != nil {
		out.ExceptionID = result.Exception.ID
	}
	return out, nil
}

// CheckConflicts состояние бронирований источника. Для шаблона учитываются все его бронирования.
func (s *AvailabilityService) CheckConflicts(ctx context.Context, ref model.AvailabilityRef) (*ConflictReport, error) {
	if !ref.Valid() {
		return nil, &ValidationError{Field: "Ref", Message: "must reference a pattern or a slot"}
	}
	return s.conflicts.CheckConflicts(ctx, ref)
}

// ReserveOccurrence бронирует вхождение или слот для студента.
// Синтетический id разворачивается в id шаблона. Одновременные попытки на один момент
// разрешает уникальный индекс хранилища: проигравшая получает ConflictError.
func (s *AvailabilityService) ReserveOccurrence(ctx context.Context, occurrenceID string, studentID int64) (*model.Booking, error) {
	if studentID <= 0 {
		return nil, &ValidationError{Field: "StudentID", Message: "must be greater than 0"}
	}

	occ, err := s.resolveOccurrence(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}

	if !occ.StartsAt.After(s.now()) {
		return nil, &ValidationError{Field: "OccurrenceID", Message: "occurrence has already started"}
	}

	report, err := s.conflicts.CheckOccurrence(ctx, occ)
	if err != nil {
		return nil, err
	}
	if report.HasConflicts {
		return nil, &ConflictError{Message: fmt.Sprintf("occurrence %s is already booked", occ.ID), Blocking: report.Blocking}
	}

	booking := &model.Booking{
		StudentID:       studentID,
		AvailabilityRef: occ.Source,
		ScheduledAt:     occ.StartsAt.UTC(),
		DurationMinutes: int(occ.EndsAt.Sub(occ.StartsAt) / time.Minute),
		Status:          model.BookingStatusScheduled,
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &ConflictError{Message: fmt.Sprintf("occurrence %s is already booked", occ.ID)}
		}
		return nil, storageErr("create booking", err)
	}

	s.logger.Info("Occurrence reserved",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("student_id", studentID),
		zap.String("occurrence_id", occ.ID),
		zap.String("source", occ.Source.String()),
		zap.Time("scheduled_at", booking.ScheduledAt),
	)

	return booking, nil
}

// resolveOccurrence находит существующее вхождение по синтетическому id или id слота
func (s *AvailabilityService) resolveOccurrence(ctx context.Context, occurrenceID string) (model.Occurrence, error) {
	req, err := singleRequest(occurrenceID)
	if err != nil {
		return model.Occurrence{}, err
	}

	if req.Target.IsSlot() {
		slot, err := s.slots.GetByID(ctx, req.Target.ID)
		if err != nil {
			return model.Occurrence{}, storageErr("get slot", err)
		}
		if slot == nil || !slot.IsActive {
			return model.Occurrence{}, notFound("slot", req.Target.ID)
		}
		occ, err := s.slotOccurrence(slot)
		if err != nil {
			return model.Occurrence{}, fmt.Errorf("slot timezone: %w", err)
		}
		return occ, nil
	}

	p, err := s.GetPattern(ctx, req.Target.ID)
	if err != nil {
		return model.Occurrence{}, err
	}
	if !p.IsActive {
		return model.Occurrence{}, &NotFoundError{Resource: "occurrence", ID: occurrenceID}
	}

	date := req.Date.MustGet()
	exceptions, err := s.resolver.Load(ctx, p.ID, date, date)
	if err != nil {
		return model.Occurrence{}, err
	}
	occ, found, err := s.generator.OccurrenceOn(p, date, exceptions)
	if err != nil {
		return model.Occurrence{}, fmt.Errorf("generate occurrence: %w", err)
	}
	if !found {
		return model.Occurrence{}, &NotFoundError{Resource: "occurrence", ID: occurrenceID}
	}

	return occ, nil
}

// ExportCalendar выгружает вхождения окна в iCalendar
func (s *AvailabilityService) ExportCalendar(ctx context.Context, q ListQuery) ([]byte, error) {
	occs, err := s.ListOccurrences(ctx, q)
	if err != nil {
		return nil, err
	}

	data, err := calendar.Export(occs, calendar.Options{
		Name:     fmt.Sprintf("Availability %d", q.OwnerID),
		Timezone: q.DisplayTimezone,
		Now:      s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("export calendar: %w", err)
	}

	return data, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/Freeeeeet/availability_engine/internal/recurrence"
	"github.com/Freeeeeet/availability_engine/internal/tzconv"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"go.uber.org/zap"
)

// Scope на какие вхождения распространяется изменение
type Scope string

const (
	ScopeSingle Scope = "single" // одно вхождение или один слот
	ScopeFuture Scope = "future" // с сегодняшнего дня
	ScopeAll    Scope = "all"    // вся серия
)

type Action string

const (
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// SeriesFields изменяемые поля. None означает "не менять".
type SeriesFields struct {
	StartTime mo.Option[string] // HH:MM в зоне Timezone
	EndTime   mo.Option[string]
	Timezone  string            // зона StartTime/EndTime, пусто: каноническая
	CourseID  mo.Option[*int64] // Some(nil) снимает привязку к курсу
	IsActive  mo.Option[bool]
}

func (f SeriesFields) IsEmpty() bool {
	return f.StartTime.IsAbsent() && f.EndTime.IsAbsent() && f.CourseID.IsAbsent() && f.IsActive.IsAbsent()
}

// MutationRequest запрос к SeriesMutator.
// Для single по шаблону нужна дата вхождения, для слота Target указывает на слот.
type MutationRequest struct {
	Target  model.AvailabilityRef
	Date    mo.Option[time.Time]
	Scope   Scope
	Action  Action
	Fields  SeriesFields
	ActorID int64
	Reason  string

	// Replace: для single по вхождению шаблона перенос на эту дату заменяется,
	// а не возвращается как AlreadyExcepted. Удаление не заменяется.
	Replace bool
}

// SkippedInstance вхождение или слот, оставленный из-за активных бронирований
type SkippedInstance struct {
	Ref        model.AvailabilityRef
	Date       time.Time
	BookingIDs []int64
}

// MutationResult итог изменения. Пропуски не считаются ошибкой.
type MutationResult struct {
	UpdatedCount    int
	DeletedCount    int
	SkippedCount    int
	TotalInstances  int
	TombstonedCount int // свободные вхождения, закрытые исключениями вокруг забронированных
	PatternDeleted  bool
	Skipped         []SkippedInstance

	// для single по вхождению шаблона
	Exception       *model.Exception
	AlreadyExcepted bool
}

func (r *MutationResult) skip(ref model.AvailabilityRef, date time.Time, blocking []*model.Booking) {
	r.TotalInstances++
	r.SkippedCount++
	r.Skipped = append(r.Skipped, SkippedInstance{Ref: ref, Date: date, BookingIDs: bookingIDs(blocking)})
}

// SeriesMutator применяет изменения к одному вхождению или ко всей серии
type SeriesMutator struct {
	patterns   PatternStore
	exceptions ExceptionStore
	slots      SlotStore
	converter  *tzconv.Converter
	generator  *recurrence.Generator
	resolver   *ExceptionResolver
	conflicts  *ConflictChecker
	validator  *Validator
	now        func() time.Time
	logger     *zap.Logger
}

func NewSeriesMutator(
	patterns PatternStore,
	exceptions ExceptionStore,
	slots SlotStore,
	converter *tzconv.Converter,
	generator *recurrence.Generator,
	resolver *ExceptionResolver,
	conflicts *ConflictChecker,
	validator *Validator,
	now func() time.Time,
	logger *zap.Logger,
) *SeriesMutator {
	if now == nil {
		now = time.Now
	}
	return &SeriesMutator{
		patterns:   patterns,
		exceptions: exceptions,
		slots:      slots,
		converter:  converter,
		generator:  generator,
		resolver:   resolver,
		conflicts:  conflicts,
		validator:  validator,
		now:        now,
		logger:     logger,
	}
}

// Mutate выполняет запрос в зависимости от области и действия
func (m *SeriesMutator) Mutate(ctx context.Context, req MutationRequest) (*MutationResult, error) {
	if !req.Target.Valid() {
		return nil, &ValidationError{Field: "Target", Message: "must reference a pattern or a slot"}
	}
	if req.Action != ActionUpdate && req.Action != ActionDelete {
		return nil, &ValidationError{Field: "Action", Message: "must be update or delete"}
	}

	switch req.Scope {
	case ScopeSingle:
		if req.Target.IsSlot() {
			return m.mutateSlot(ctx, req)
		}
		return m.mutateOccurrence(ctx, req)
	case ScopeFuture, ScopeAll:
		if !req.Target.IsPattern() {
			return nil, &ValidationError{Field: "Scope", Message: "future and all apply to patterns only"}
		}
		if req.Action == ActionUpdate {
			return m.updateSeries(ctx, req)
		}
		return m.deleteSeries(ctx, req)
	default:
		return nil, &ValidationError{Field: "Scope", Message: "must be single, future or all"}
	}
}

// mutateOccurrence удаление или перенос одного виртуального вхождения через исключение.
// Шаблон при этом не меняется.
func (m *SeriesMutator) mutateOccurrence(ctx context.Context, req MutationRequest) (*MutationResult, error) {
	date, ok := req.Date.Get()
	if !ok {
		return nil, &ValidationError{Field: "Date", Message: "is required for a single occurrence"}
	}
	date = model.Date(date)

	p, err := m.loadPattern(ctx, req.Target.ID)
	if err != nil {
		return nil, err
	}
	if p.NeedsMigration() {
		return nil, fmt.Errorf("mutate occurrence: %w", recurrence.ErrNeedsMigration)
	}

	occurrenceID := model.OccurrenceID(p.ID, date)
	result := &MutationResult{TotalInstances: 1}

	existing, err := m.exceptions.GetByDate(ctx, p.ID, date)
	if err != nil {
		return nil, storageErr("get exception", err)
	}

	var lookup recurrence.ExceptionLookup = recurrence.NoExceptions
	if existing != nil {
		if !req.Replace || existing.Kind == model.ExceptionDeleted {
			result.Exception = existing
			result.AlreadyExcepted = true
			return result, nil
		}
		lookup = NewExceptionSet([]*model.Exception{existing})
	}

	var times parsedTimes
	if req.Action == ActionUpdate {
		times, err = m.parseTimes(req.Fields, p.Timezone)
		if err != nil {
			return nil, err
		}
		if !times.set {
			return nil, &ValidationError{Field: "StartTime", Message: "is required"}
		}
	}

	occ, found, err := m.generator.OccurrenceOn(p, date, lookup)
	if err != nil {
		return nil, fmt.Errorf("generate occurrence: %w", err)
	}
	if !found {
		return nil, &NotFoundError{Resource: "occurrence", ID: occurrenceID}
	}

	report, err := m.conflicts.CheckOccurrence(ctx, occ)
	if err != nil {
		return nil, err
	}
	if report.HasConflicts {
		return nil, &ConflictError{
			Message:  fmt.Sprintf("occurrence %s has active bookings", occurrenceID),
			Blocking: report.Blocking,
		}
	}

	// прежний перенос уступает место новому исключению
	if existing != nil {
		if err := m.exceptions.Delete(ctx, existing.ID); err != nil {
			return nil, storageErr("delete exception", err)
		}
		m.logger.Info("Occurrence override replaced",
			zap.String("occurrence_id", occurrenceID),
			zap.String("action", string(req.Action)),
		)
	}

	var exc *model.Exception
	switch req.Action {
	case ActionDelete:
		exc, err = m.resolver.AddDeletion(ctx, p.ID, date, req.ActorID, req.Reason)
		result.DeletedCount = 1
	case ActionUpdate:
		exc, err = m.resolver.AddModification(ctx, p.ID, date, model.Override{
			StartTime: times.start,
			EndTime:   times.end,
			Timezone:  times.timezone,
		}, req.ActorID, req.Reason)
		result.UpdatedCount = 1
	}

	if errors.Is(err, ErrAlreadyExcepted) {
		return &MutationResult{TotalInstances: 1, Exception: exc, AlreadyExcepted: true}, nil
	}
	if err != nil {
		return nil, err
	}

	result.Exception = exc
	return result, nil
}

// mutateSlot прямое изменение материализованного слота, если его никто не забронировал
func (m *SeriesMutator) mutateSlot(ctx context.Context, req MutationRequest) (*MutationResult, error) {
	slot, err := m.slots.GetByID(ctx, req.Target.ID)
	if err != nil {
		return nil, storageErr("get slot", err)
	}
	if slot == nil {
		return nil, notFound("slot", req.Target.ID)
	}

	report, err := m.conflicts.CheckConflicts(ctx, slot.Ref())
	if err != nil {
		return nil, err
	}
	if report.HasConflicts {
		return nil, &ConflictError{
			Message:  fmt.Sprintf("slot %s has active bookings", slot.ID),
			Blocking: report.Blocking,
		}
	}

	result := &MutationResult{TotalInstances: 1}

	switch req.Action {
	case ActionDelete:
		if err := m.slots.Delete(ctx, slot.ID); err != nil {
			return nil, storageErr("delete slot", err)
		}
		result.DeletedCount = 1
	case ActionUpdate:
		if req.Fields.IsEmpty() {
			return nil, &ValidationError{Field: "Fields", Message: "nothing to update"}
		}
		times, err := m.parseTimes(req.Fields, slot.Timezone)
		if err != nil {
			return nil, err
		}
		if err := m.applyToSlot(slot, times, req.Fields); err != nil {
			return nil, err
		}
		if err := m.slots.Update(ctx, slot); err != nil {
			return nil, storageErr("update slot", err)
		}
		result.UpdatedCount = 1
	}

	m.logger.Info("Slot mutated",
		zap.String("slot_id", slot.ID.String()),
		zap.String("action", string(req.Action)),
	)

	return result, nil
}

// updateSeries меняет шаблон на месте и применяет те же поля к дочерним слотам.
// Забронированные вхождения закрепляются на старом времени исключением.
func (m *SeriesMutator) updateSeries(ctx context.Context, req MutationRequest) (*MutationResult, error) {
	if req.Fields.IsEmpty() {
		return nil, &ValidationError{Field: "Fields", Message: "nothing to update"}
	}

	p, err := m.loadPattern(ctx, req.Target.ID)
	if err != nil {
		return nil, err
	}

	times, err := m.parseTimes(req.Fields, m.converter.CanonicalName())
	if err != nil {
		return nil, err
	}

	today := m.today()
	result := &MutationResult{}

	if times.set {
		if p.NeedsMigration() {
			return nil, fmt.Errorf("update series: %w", recurrence.ErrNeedsMigration)
		}

		start, end, delta, err := m.rebaseTimes(p, times, today)
		if err != nil {
			return nil, err
		}

		booked, blocking, err := m.bookedOccurrences(ctx, p, today)
		if err != nil {
			return nil, err
		}
		if delta != 0 && len(booked) > 0 {
			return nil, &ConflictError{
				Message:  "new time moves occurrences to another day while bookings exist",
				Blocking: blocking,
			}
		}

		for _, b := range booked {
			_, err := m.resolver.AddModification(ctx, p.ID, b.occ.Date, model.Override{
				StartTime: b.occ.StartTime,
				EndTime:   b.occ.EndTime,
				Timezone:  p.Timezone,
			}, req.ActorID, "kept by series update")
			if err != nil && !errors.Is(err, ErrAlreadyExcepted) {
				return nil, err
			}
			result.skip(p.Ref(), b.occ.Date, b.blocking)
		}

		p.StartTime, p.EndTime = start, end
		if delta != 0 {
			shiftPatternDays(p, delta)
		}
		if req.Fields.Timezone != "" {
			p.OriginalTimezone = req.Fields.Timezone
		}
	}

	if course, ok := req.Fields.CourseID.Get(); ok {
		p.CourseID = course
	}
	if active, ok := req.Fields.IsActive.Get(); ok {
		p.IsActive = active
	}

	if err := m.patterns.Update(ctx, p); err != nil {
		return nil, storageErr("update pattern", err)
	}

	children, err := m.children(ctx, p.ID, req.Scope, today)
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		report, err := m.conflicts.CheckConflicts(ctx, child.Ref())
		if err != nil {
			return nil, err
		}
		if report.HasConflicts {
			result.skip(child.Ref(), child.SpecificDate, report.Blocking)
			continue
		}

		if err := m.applyToSlot(child, times, req.Fields); err != nil {
			return nil, err
		}
		if err := m.slots.Update(ctx, child); err != nil {
			m.logger.Error("Failed to update child slot",
				zap.String("slot_id", child.ID.String()),
				zap.Error(err),
			)
			return nil, storageErr("update slot", err)
		}
		result.TotalInstances++
		result.UpdatedCount++
	}

	m.logger.Info("Series updated",
		zap.String("pattern_id", p.ID.String()),
		zap.String("scope", string(req.Scope)),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("skipped", result.SkippedCount),
	)

	return result, nil
}

// deleteSeries удаляет дочерние слоты и закрывает шаблон.
// Строка шаблона удаляется только если не осталось ни слотов, ни активных бронирований.
func (m *SeriesMutator) deleteSeries(ctx context.Context, req MutationRequest) (*MutationResult, error) {
	p, err := m.loadPattern(ctx, req.Target.ID)
	if err != nil {
		return nil, err
	}

	today := m.today()
	yesterday := model.AddDays(today, -1)
	result := &MutationResult{}

	children, err := m.children(ctx, p.ID, req.Scope, today)
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		report, err := m.conflicts.CheckConflicts(ctx, child.Ref())
		if err != nil {
			return nil, err
		}
		if report.HasConflicts {
			result.skip(child.Ref(), child.SpecificDate, report.Blocking)
			continue
		}

		if err := m.slots.Delete(ctx, child.ID); err != nil {
			return nil, storageErr("delete slot", err)
		}
		result.TotalInstances++
		result.DeletedCount++
	}

	report, err := m.conflicts.CheckConflicts(ctx, p.Ref())
	if err != nil {
		return nil, err
	}

	switch {
	case report.HasConflicts:
		// шаблон живёт до последней забронированной даты, свободные даты между ними закрываются
		if err := m.tombstoneAround(ctx, p, today, req, result); err != nil {
			return nil, err
		}
		if err := m.patterns.Update(ctx, p); err != nil {
			return nil, storageErr("update pattern", err)
		}

	case req.Scope == ScopeAll || (p.PatternStartDate != nil && p.PatternStartDate.After(yesterday)):
		remaining, err := m.slots.CountByParent(ctx, p.ID)
		if err != nil {
			return nil, storageErr("count slots", err)
		}
		if remaining == 0 {
			if _, err := m.exceptions.DeleteByPattern(ctx, p.ID); err != nil {
				return nil, storageErr("delete exceptions", err)
			}
			if err := m.patterns.Delete(ctx, p.ID); err != nil {
				return nil, storageErr("delete pattern", err)
			}
			result.PatternDeleted = true
			break
		}
		endPatternAt(p, yesterday)
		if err := m.patterns.Update(ctx, p); err != nil {
			return nil, storageErr("update pattern", err)
		}

	default:
		endPatternAt(p, yesterday)
		if err := m.patterns.Update(ctx, p); err != nil {
			return nil, storageErr("update pattern", err)
		}
	}

	m.logger.Info("Series deleted",
		zap.String("pattern_id", p.ID.String()),
		zap.String("scope", string(req.Scope)),
		zap.Int("deleted", result.DeletedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("tombstoned", result.TombstonedCount),
		zap.Bool("pattern_deleted", result.PatternDeleted),
	)

	return result, nil
}

// tombstoneAround закрывает свободные вхождения с from до последней забронированной даты
// и обрезает шаблон по этой дате
func (m *SeriesMutator) tombstoneAround(ctx context.Context, p *model.Pattern, from time.Time, req MutationRequest, result *MutationResult) error {
	if p.NeedsMigration() {
		return fmt.Errorf("delete series: %w", recurrence.ErrNeedsMigration)
	}

	blocking, last, err := m.blockingBookings(ctx, p)
	if err != nil {
		return err
	}

	err = m.walk(ctx, p, from, last, func(occ model.Occurrence) error {
		occReport := m.conflicts.ClassifyOccurrence(occ, blocking)
		if occReport.HasConflicts {
			result.skip(p.Ref(), occ.Date, occReport.Blocking)
			return nil
		}
		if err := m.tombstone(ctx, p.ID, occ.Date, req); err != nil {
			return err
		}
		result.TombstonedCount++
		return nil
	})
	if err != nil {
		return err
	}

	yesterday := model.AddDays(from, -1)
	if last.Before(yesterday) {
		last = yesterday
	}
	endPatternAt(p, last)
	return nil
}

// tombstone закрывает дату исключением-удалением, заменяя перенос если он был
func (m *SeriesMutator) tombstone(ctx context.Context, patternID uuid.UUID, date time.Time, req MutationRequest) error {
	existing, err := m.resolver.AddDeletion(ctx, patternID, date, req.ActorID, req.Reason)
	if !errors.Is(err, ErrAlreadyExcepted) {
		return err
	}
	if existing == nil || existing.Kind == model.ExceptionDeleted {
		return nil
	}

	if err := m.exceptions.Delete(ctx, existing.ID); err != nil {
		return storageErr("delete exception", err)
	}
	_, err = m.resolver.AddDeletion(ctx, patternID, date, req.ActorID, req.Reason)
	if errors.Is(err, ErrAlreadyExcepted) {
		return nil
	}
	return err
}

type bookedOccurrence struct {
	occ      model.Occurrence
	blocking []*model.Booking
}

// bookedOccurrences вхождения шаблона начиная с from, на которые есть блокирующие бронирования
func (m *SeriesMutator) bookedOccurrences(ctx context.Context, p *model.Pattern, from time.Time) ([]bookedOccurrence, []*model.Booking, error) {
	blocking, last, err := m.blockingBookings(ctx, p)
	if err != nil || len(blocking) == 0 {
		return nil, nil, err
	}

	var booked []bookedOccurrence
	err = m.walk(ctx, p, from, last, func(occ model.Occurrence) error {
		report := m.conflicts.ClassifyOccurrence(occ, blocking)
		if report.HasConflicts {
			booked = append(booked, bookedOccurrence{occ: occ, blocking: report.Blocking})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return booked, blocking, nil
}

// blockingBookings блокирующие бронирования шаблона и дата самого позднего из них в зоне шаблона
func (m *SeriesMutator) blockingBookings(ctx context.Context, p *model.Pattern) ([]*model.Booking, time.Time, error) {
	report, err := m.conflicts.CheckConflicts(ctx, p.Ref())
	if err != nil {
		return nil, time.Time{}, err
	}
	if !report.HasConflicts {
		return nil, time.Time{}, nil
	}

	loc, err := m.converter.Location(p.Timezone)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("pattern timezone: %w", err)
	}

	var last time.Time
	for _, b := range report.Blocking {
		if d := model.DateIn(b.ScheduledAt, loc); d.After(last) {
			last = d
		}
	}

	return report.Blocking, last, nil
}

// walk обходит вхождения шаблона в [from, to] окнами допустимой длины
func (m *SeriesMutator) walk(ctx context.Context, p *model.Pattern, from, to time.Time, fn func(model.Occurrence) error) error {
	step := m.generator.MaxWindowDays()
	to = model.Date(to)

	for start := model.Date(from); !start.After(to); start = model.AddDays(start, step) {
		end := model.AddDays(start, step-1)
		if end.After(to) {
			end = to
		}

		exceptions, err := m.resolver.Load(ctx, p.ID, start, end)
		if err != nil {
			return err
		}
		occs, err := m.generator.Collect(p, start, end, exceptions)
		if err != nil {
			return fmt.Errorf("generate occurrences: %w", err)
		}
		for _, occ := range occs {
			if err := fn(occ); err != nil {
				return err
			}
		}
	}

	return nil
}

func (m *SeriesMutator) children(ctx context.Context, patternID uuid.UUID, scope Scope, today time.Time) ([]*model.MaterializedSlot, error) {
	var since *time.Time
	if scope == ScopeFuture {
		since = &today
	}

	children, err := m.slots.ListByParent(ctx, patternID, since)
	if err != nil {
		return nil, storageErr("list child slots", err)
	}
	return children, nil
}

func (m *SeriesMutator) loadPattern(ctx context.Context, id uuid.UUID) (*model.Pattern, error) {
	p, err := m.patterns.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("get pattern", err)
	}
	if p == nil {
		return nil, notFound("pattern", id)
	}
	return p, nil
}

func (m *SeriesMutator) today() time.Time {
	return model.DateIn(m.now(), m.converter.Canonical())
}

type parsedTimes struct {
	set        bool
	start, end model.Clock
	timezone   string
}

// parseTimes проверяет и разбирает StartTime/EndTime. Задаются только вместе.
func (m *SeriesMutator) parseTimes(f SeriesFields, defaultTZ string) (parsedTimes, error) {
	startRaw, hasStart := f.StartTime.Get()
	endRaw, hasEnd := f.EndTime.Get()
	if !hasStart && !hasEnd {
		return parsedTimes{}, nil
	}
	if hasStart != hasEnd {
		return parsedTimes{}, &ValidationError{Field: "EndTime", Message: "StartTime and EndTime must be set together"}
	}

	if err := m.validator.Var("StartTime", startRaw, "required,hhmm"); err != nil {
		return parsedTimes{}, err
	}
	if err := m.validator.Var("EndTime", endRaw, "required,hhmm"); err != nil {
		return parsedTimes{}, err
	}

	tz := defaultTZ
	if f.Timezone != "" {
		if err := m.validator.Var("Timezone", f.Timezone, "timezone"); err != nil {
			return parsedTimes{}, err
		}
		tz = f.Timezone
	}

	start, _ := model.ParseClock(startRaw)
	end, _ := model.ParseClock(endRaw)
	if err := checkTimeRange(start, end); err != nil {
		return parsedTimes{}, err
	}

	return parsedTimes{set: true, start: start, end: end, timezone: tz}, nil
}

// rebaseTimes переводит новые времена в зону шаблона так, чтобы вхождение осталось
// на том же локальном дне в зоне times.timezone. delta: на сколько дней сдвигаются дни недели шаблона.
func (m *SeriesMutator) rebaseTimes(p *model.Pattern, times parsedTimes, today time.Time) (model.Clock, model.Clock, int, error) {
	ref := today
	if p.PatternStartDate != nil && p.PatternStartDate.After(today) {
		ref = model.Date(*p.PatternStartDate)
	}

	patternLoc, err := m.converter.Location(p.Timezone)
	if err != nil {
		return model.Clock{}, model.Clock{}, 0, fmt.Errorf("pattern timezone: %w", err)
	}
	localLoc, err := m.converter.Location(times.timezone)
	if err != nil {
		return model.Clock{}, model.Clock{}, 0, &ValidationError{Field: "Timezone", Message: err.Error()}
	}

	_, localDate := tzconv.Convert(p.StartTime, patternLoc, localLoc, ref)
	before := model.DaysBetween(localDate, ref)

	start, startDate := tzconv.Convert(times.start, localLoc, patternLoc, localDate)
	end, _ := tzconv.Convert(times.end, localLoc, patternLoc, localDate)
	after := model.DaysBetween(localDate, startDate)

	return start, end, after - before, nil
}

// applyToSlot переносит слот внутри его дня в зоне times.timezone.
// SpecificDate пересчитывается, если в зоне слота новое время попало на соседнюю дату.
func (m *SeriesMutator) applyToSlot(slot *model.MaterializedSlot, times parsedTimes, f SeriesFields) error {
	if times.set {
		current, err := m.converter.Instant(slot.SpecificDate, slot.StartTime, slot.Timezone)
		if err != nil {
			return fmt.Errorf("slot timezone: %w", err)
		}
		startsAt, endsAt, err := m.converter.Reschedule(current, times.start, times.end, times.timezone)
		if err != nil {
			return &ValidationError{Field: "Timezone", Message: err.Error()}
		}
		date, start, err := m.converter.Localize(startsAt, slot.Timezone)
		if err != nil {
			return fmt.Errorf("slot timezone: %w", err)
		}
		_, end, _ := m.converter.Localize(endsAt, slot.Timezone)
		slot.SpecificDate, slot.StartTime, slot.EndTime = date, start, end
	}
	if course, ok := f.CourseID.Get(); ok {
		slot.CourseID = course
	}
	if active, ok := f.IsActive.Get(); ok {
		slot.IsActive = active
	}
	return nil
}

// shiftPatternDays сдвигает дни недели и границы шаблона на delta дней
func shiftPatternDays(p *model.Pattern, delta int) {
	p.Weekday = p.Weekday.Shift(delta)
	p.RecurrenceWeekdays = p.RecurrenceWeekdays.Shift(delta)
	if p.PatternStartDate != nil {
		d := model.AddDays(*p.PatternStartDate, delta)
		p.PatternStartDate = &d
	}
	if p.PatternEndDate != nil {
		d := model.AddDays(*p.PatternEndDate, delta)
		p.PatternEndDate = &d
	}
}

// endPatternAt ставит последнюю дату шаблона. Шаблон, который ещё не начался, выключается.
func endPatternAt(p *model.Pattern, end time.Time) {
	end = model.Date(end)
	if p.PatternStartDate != nil && model.Date(*p.PatternStartDate).After(end) {
		p.IsActive = false
		return
	}
	if p.PatternEndDate == nil || model.Date(*p.PatternEndDate).After(end) {
		p.PatternEndDate = &end
	}
}

// Package recurrence разворачивает шаблоны доступности в виртуальные вхождения.
package recurrence

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/Freeeeeet/availability_engine/internal/tzconv"
	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
)

const (
	// DefaultMaxWindowDays ограничение окна запроса по умолчанию
	DefaultMaxWindowDays = 366
	// DisplaySlackDays запас окна генерации с каждой стороны: перевод в зону отображения
	// сдвигает дату вхождения не больше чем на сутки
	DisplaySlackDays = 1
)

var (
	ErrWindowTooLarge = errors.New("recurrence: query window too large")
	ErrInvalidWindow  = errors.New("recurrence: query end before query start")
	ErrEmptyWeekdays  = errors.New("recurrence: pattern has no recurrence weekdays")
	ErrNeedsMigration = errors.New("recurrence: pattern timezone storage format requires migration")
)

// rrule-go нумерует дни с понедельника, как и движок
var rruleWeekdays = [...]rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// ExceptionLookup источник исключений для одного шаблона
type ExceptionLookup interface {
	IsDeleted(date time.Time) bool
	Override(date time.Time) mo.Option[model.Override]
}

type noExceptions struct{}

func (noExceptions) IsDeleted(time.Time) bool                     { return false }
func (noExceptions) Override(time.Time) mo.Option[model.Override] { return mo.None[model.Override]() }

// NoExceptions пустой ExceptionLookup
var NoExceptions ExceptionLookup = noExceptions{}

// Generator разворачивает шаблоны в вхождения
type Generator struct {
	converter     *tzconv.Converter
	maxWindowDays int
	logger        *zap.Logger
}

// NewGenerator создаёт генератор. maxWindowDays <= 0 означает DefaultMaxWindowDays.
func NewGenerator(converter *tzconv.Converter, maxWindowDays int, logger *zap.Logger) *Generator {
	if maxWindowDays <= 0 {
		maxWindowDays = DefaultMaxWindowDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		converter:     converter,
		maxWindowDays: maxWindowDays,
		logger:        logger,
	}
}

// MaxWindowDays максимальная длина окна в днях
func (g *Generator) MaxWindowDays() int {
	return g.maxWindowDays
}

// CheckWindow проверяет окно запроса [start, end]
func (g *Generator) CheckWindow(start, end time.Time) error {
	return checkWindow(start, end, g.maxWindowDays)
}

func checkWindow(start, end time.Time, maxDays int) error {
	if model.Date(end).Before(model.Date(start)) {
		return ErrInvalidWindow
	}
	days := model.DaysBetween(start, end) + 1
	if days > maxDays {
		return fmt.Errorf("%w: %d days, max %d", ErrWindowTooLarge, days, maxDays)
	}
	return nil
}

// EffectiveRange пересечение окна запроса с границами шаблона.
// Границы запроса читаются как календарные даты в их собственной зоне.
// ok=false если пересечение пустое.
func (g *Generator) EffectiveRange(p *model.Pattern, queryStart, queryEnd time.Time) (time.Time, time.Time, bool) {
	start := model.Date(queryStart)
	end := model.Date(queryEnd)

	if p.PatternStartDate != nil && model.Date(*p.PatternStartDate).After(start) {
		start = model.Date(*p.PatternStartDate)
	}
	if p.PatternEndDate != nil && model.Date(*p.PatternEndDate).Before(end) {
		end = model.Date(*p.PatternEndDate)
	}

	if start.After(end) {
		return start, end, false
	}
	return start, end, true
}

// Generate возвращает последовательность вхождений шаблона p в окне [queryStart, queryEnd].
// Последовательность конечна, отсортирована по (дата, время) и может обходиться повторно.
// Флаги конфликтов не заполняются: это делает вызывающий.
func (g *Generator) Generate(p *model.Pattern, queryStart, queryEnd time.Time, exceptions ExceptionLookup) (iter.Seq[model.Occurrence], error) {
	if p.NeedsMigration() {
		return nil, ErrNeedsMigration
	}
	if len(p.RecurrenceWeekdays) == 0 {
		return nil, ErrEmptyWeekdays
	}
	if err := checkWindow(queryStart, queryEnd, g.maxWindowDays+2*DisplaySlackDays); err != nil {
		return nil, err
	}
	if exceptions == nil {
		exceptions = NoExceptions
	}

	loc, err := g.converter.Location(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("pattern timezone: %w", err)
	}

	start, end, ok := g.EffectiveRange(p, queryStart, queryEnd)
	if !ok {
		g.logger.Debug("Query window outside pattern boundaries",
			zap.String("pattern_id", p.ID.String()),
			zap.String("effective_start", model.FormatDate(start)),
			zap.String("effective_end", model.FormatDate(end)))
		return func(func(model.Occurrence) bool) {}, nil
	}

	// Кандидаты считаются в зоне шаблона: день недели зависит от того,
	// в какой зоне берётся полночь
	byDay := make([]rrule.Weekday, 0, len(p.RecurrenceWeekdays))
	for _, d := range p.RecurrenceWeekdays {
		if !d.Valid() {
			return nil, fmt.Errorf("recurrence: invalid weekday %d", int(d))
		}
		byDay = append(byDay, rruleWeekdays[d])
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: byDay,
		Dtstart:   time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc),
		Until:     time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc),
	})
	if err != nil {
		return nil, fmt.Errorf("build recurrence rule: %w", err)
	}

	return func(yield func(model.Occurrence) bool) {
		next := rule.Iterator()
		for {
			candidate, ok := next()
			if !ok {
				return
			}

			date := model.Date(candidate)
			if exceptions.IsDeleted(date) {
				continue
			}

			occ := g.occurrence(p, date, loc, exceptions.Override(date))
			if !yield(occ) {
				return
			}
		}
	}, nil
}

// Collect разворачивает последовательность в срез
func (g *Generator) Collect(p *model.Pattern, queryStart, queryEnd time.Time, exceptions ExceptionLookup) ([]model.Occurrence, error) {
	seq, err := g.Generate(p, queryStart, queryEnd, exceptions)
	if err != nil {
		return nil, err
	}
	var out []model.Occurrence
	for occ := range seq {
		out = append(out, occ)
	}
	return out, nil
}

// OccurrenceOn строит вхождение шаблона на дату date, если оно существует
func (g *Generator) OccurrenceOn(p *model.Pattern, date time.Time, exceptions ExceptionLookup) (model.Occurrence, bool, error) {
	date = model.Date(date)
	seq, err := g.Generate(p, date, date, exceptions)
	if err != nil {
		return model.Occurrence{}, false, err
	}
	for occ := range seq {
		return occ, true, nil
	}
	return model.Occurrence{}, false, nil
}

func (g *Generator) occurrence(p *model.Pattern, date time.Time, loc *time.Location, override mo.Option[model.Override]) model.Occurrence {
	startTime, endTime := p.StartTime, p.EndTime
	startsAt := startTime.On(date, loc)
	endsAt := startsAt.Add(time.Duration(model.SpanMinutes(startTime, endTime)) * time.Minute)
	modified := false

	if ov, ok := override.Get(); ok {
		startsAt, endsAt = g.overrideInstants(p, startsAt, date, loc, ov)
		startTime, endTime = model.ClockOf(startsAt.In(loc)), model.ClockOf(endsAt.In(loc))
		modified = true
	}

	return model.Occurrence{
		ID:        model.OccurrenceID(p.ID, date),
		Source:    p.Ref(),
		PatternID: p.ID,
		OwnerID:   p.OwnerID,
		CourseID:  p.CourseID,
		Date:      date,
		StartTime: startTime,
		EndTime:   endTime,
		Timezone:  p.Timezone,
		StartsAt:  startsAt,
		EndsAt:    endsAt,
		Modified:  modified,
	}
}

// overrideInstants ставит времена исключения на тот день, которым регулярное вхождение
// является в зоне исключения
func (g *Generator) overrideInstants(p *model.Pattern, regular, date time.Time, loc *time.Location, ov model.Override) (time.Time, time.Time) {
	tz := ov.Timezone
	if tz == "" {
		tz = p.Timezone
	}

	startsAt, endsAt, err := g.converter.Reschedule(regular, ov.StartTime, ov.EndTime, tz)
	if err != nil {
		g.logger.Warn("Override timezone unavailable, using pattern timezone",
			zap.String("pattern_id", p.ID.String()),
			zap.String("date", model.FormatDate(date)),
			zap.String("timezone", tz),
			zap.Error(err),
		)
		startsAt = ov.StartTime.On(date, loc)
		endsAt = startsAt.Add(time.Duration(model.SpanMinutes(ov.StartTime, ov.EndTime)) * time.Minute)
	}
	return startsAt, endsAt
}

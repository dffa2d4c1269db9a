// Package tzconv переводит время суток между зонами с учётом перехода на летнее время.
//
// Все операции принимают опорную дату: смещение зоны зависит от даты.
// Для вызывающих без конкретной даты результат на стыке DST приблизительный.
package tzconv

import (
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // база зон не должна зависеть от окружения

	"github.com/Freeeeeet/availability_engine/internal/model"
	"go.uber.org/zap"
)

// Converter переводит время между канонической зоной хранения и зонами пользователей
type Converter struct {
	canonical *time.Location
	logger    *zap.Logger

	mu        sync.RWMutex
	locations map[string]*time.Location
}

// NewConverter создаёт конвертер с канонической зоной canonicalTZ
func NewConverter(canonicalTZ string, logger *zap.Logger) (*Converter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := loadLocation(canonicalTZ)
	if err != nil {
		return nil, fmt.Errorf("load canonical timezone: %w", err)
	}

	return &Converter{
		canonical: loc,
		logger:    logger,
		locations: map[string]*time.Location{canonicalTZ: loc},
	}, nil
}

// Canonical каноническая зона
func (c *Converter) Canonical() *time.Location {
	return c.canonical
}

// CanonicalName имя канонической зоны
func (c *Converter) CanonicalName() string {
	return c.canonical.String()
}

// IsCanonical совпадает ли tz с канонической зоной
func (c *Converter) IsCanonical(tz string) bool {
	return tz == c.canonical.String()
}

// Location загружает зону по имени IANA, кешируя результат
func (c *Converter) Location(tz string) (*time.Location, error) {
	c.mu.RLock()
	loc, ok := c.locations[tz]
	c.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := loadLocation(tz)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.locations[tz] = loc
	c.mu.Unlock()

	return loc, nil
}

// IsValidTimezone проверяет имя зоны IANA
func IsValidTimezone(tz string) bool {
	_, err := loadLocation(tz)
	return err == nil
}

func loadLocation(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return nil, fmt.Errorf("empty timezone")
	}
	// "Local" зависит от машины и не годится для хранения
	if strings.EqualFold(tz, "local") {
		return nil, fmt.Errorf("timezone %q is not allowed", tz)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Convert переводит время суток clock из зоны src в зону dst на дату date
// и возвращает время и календарную дату в зоне dst
func Convert(clock model.Clock, src, dst *time.Location, date time.Time) (model.Clock, time.Time) {
	instant := clock.On(date, src).In(dst)
	return model.ClockOf(instant), model.Date(instant)
}

// ConvertBetween переводит время между двумя произвольными зонами.
// При ошибке возвращает исходное значение и пишет предупреждение.
func (c *Converter) ConvertBetween(clock model.Clock, sourceTZ, targetTZ string, date time.Time) model.Clock {
	src, err := c.Location(sourceTZ)
	if err != nil {
		c.warnFallback("convert between", clock, sourceTZ, date, err)
		return clock
	}
	dst, err := c.Location(targetTZ)
	if err != nil {
		c.warnFallback("convert between", clock, targetTZ, date, err)
		return clock
	}

	converted, _ := Convert(clock, src, dst, date)
	return converted
}

// ToCanonical переводит локальное время в каноническую зону.
// Если tz уже каноническая, значение возвращается без изменений.
func (c *Converter) ToCanonical(local model.Clock, tz string, date time.Time) model.Clock {
	if c.IsCanonical(tz) {
		return local
	}
	return c.ToCanonicalForced(local, tz, date)
}

// ToCanonicalForced переводит время даже если tz совпадает с канонической:
// несуществующее в момент перехода DST время нормализуется
func (c *Converter) ToCanonicalForced(local model.Clock, tz string, date time.Time) model.Clock {
	src, err := c.Location(tz)
	if err != nil {
		c.warnFallback("to canonical", local, tz, date, err)
		return local
	}

	converted, _ := Convert(local, src, c.canonical, date)
	return converted
}

// FromCanonical переводит каноническое время в зону targetTZ
func (c *Converter) FromCanonical(canonical model.Clock, targetTZ string, date time.Time) model.Clock {
	if c.IsCanonical(targetTZ) {
		return canonical
	}

	dst, err := c.Location(targetTZ)
	if err != nil {
		c.warnFallback("from canonical", canonical, targetTZ, date, err)
		return canonical
	}

	converted, _ := Convert(canonical, c.canonical, dst, date)
	return converted
}

// OffsetMinutes смещение зоны от UTC в минутах на полдень даты date
func (c *Converter) OffsetMinutes(tz string, date time.Time) (int, error) {
	loc, err := c.Location(tz)
	if err != nil {
		return 0, err
	}
	y, m, d := date.Date()
	_, offset := time.Date(y, m, d, 12, 0, 0, 0, loc).Zone()
	return offset / 60, nil
}

// Instant абсолютный момент времени clock на дату date в зоне tz
func (c *Converter) Instant(date time.Time, clock model.Clock, tz string) (time.Time, error) {
	loc, err := c.Location(tz)
	if err != nil {
		return time.Time{}, err
	}
	return clock.On(date, loc), nil
}

// Localize раскладывает момент на дату и время суток в зоне tz
func (c *Converter) Localize(instant time.Time, tz string) (time.Time, model.Clock, error) {
	loc, err := c.Location(tz)
	if err != nil {
		return time.Time{}, model.Clock{}, err
	}
	local := instant.In(loc)
	return model.Date(local), model.ClockOf(local), nil
}

// Reschedule переносит занятие, начинающееся в момент current, на start-end в зоне tz.
// День берётся из current в зоне tz, в зоне хранения результат может оказаться на соседней дате.
func (c *Converter) Reschedule(current time.Time, start, end model.Clock, tz string) (time.Time, time.Time, error) {
	localDate, _, err := c.Localize(current, tz)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	startsAt, err := c.Instant(localDate, start, tz)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return startsAt, startsAt.Add(time.Duration(model.SpanMinutes(start, end)) * time.Minute), nil
}

// DayShift на сколько календарных дней сдвигается дата при переводе
// локального времени clock (в зоне tz, на дату date) в каноническую зону: -1, 0 или +1
func (c *Converter) DayShift(clock model.Clock, tz string, date time.Time) (int, error) {
	src, err := c.Location(tz)
	if err != nil {
		return 0, err
	}
	_, canonicalDate := Convert(clock, src, c.canonical, date)
	return int(canonicalDate.Sub(model.Date(date)).Hours() / 24), nil
}

func (c *Converter) warnFallback(op string, clock model.Clock, tz string, date time.Time, err error) {
	c.logger.Warn("Timezone conversion failed, returning original value",
		zap.String("op", op),
		zap.String("time", clock.String()),
		zap.String("timezone", tz),
		zap.String("date", model.FormatDate(date)),
		zap.Error(err),
	)
}

package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay количество минут в сутках
const MinutesPerDay = 24 * 60

// Clock время суток в формате HH:MM без привязки к дате и зоне
type Clock struct {
	Hour   int `json:"hour"`   // 0-23
	Minute int `json:"minute"` // 0-59
}

// NewClock создаёт Clock, проверяя диапазоны
func NewClock(hour, minute int) (Clock, error) {
	if hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("hour out of range: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("minute out of range: %d", minute)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// ParseClock разбирает строку вида "09:30" (ведущий ноль у часа не обязателен)
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[1]) != 2 || parts[0] == "" || len(parts[0]) > 2 {
		return Clock{}, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time %q: %w", s, err)
	}

	return NewClock(hour, minute)
}

// MustParseClock как ParseClock, но паникует при ошибке. Только для констант и тестов.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf возвращает время суток момента t в его собственной зоне
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// ClockFromMinutes строит Clock из минут от полуночи, заворачивая через сутки
func ClockFromMinutes(minutes int) Clock {
	minutes = ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return Clock{Hour: minutes / 60, Minute: minutes % 60}
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes минуты от полуночи
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) Before(other Clock) bool {
	return c.Minutes() < other.Minutes()
}

// On привязывает время суток к календарной дате в зоне loc
func (c Clock) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// SpanMinutes длительность интервала start-end в минутах.
// Если end не позже start, интервал переходит через полночь.
func SpanMinutes(start, end Clock) int {
	span := end.Minutes() - start.Minutes()
	if span <= 0 {
		span += MinutesPerDay
	}
	return span
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

package model

import (
	"fmt"
	"time"
)

// DateLayout формат календарной даты (ISO 8601)
const DateLayout = "2006-01-02"

// Date нормализует календарную дату момента t (в его зоне) в полночь UTC.
// Все даты движка хранятся в таком виде, как и DATE-колонки из pgx.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateIn календарная дата момента t в зоне loc
func DateIn(t time.Time, loc *time.Location) time.Time {
	return Date(t.In(loc))
}

// ParseDate разбирает YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// MustParseDate как ParseDate, но паникует при ошибке. Для тестов.
func MustParseDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// FormatDate форматирует дату как YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// AddDays сдвигает нормализованную дату на n календарных дней
func AddDays(date time.Time, n int) time.Time {
	return Date(date).AddDate(0, 0, n)
}

// DaysBetween количество календарных дней от from до to (отрицательное если to раньше)
func DaysBetween(from, to time.Time) int {
	return int(Date(to).Sub(Date(from)).Hours() / 24)
}

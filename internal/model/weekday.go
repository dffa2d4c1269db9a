package model

import (
	"fmt"
	"sort"
	"time"
)

// Weekday день недели в соглашении движка: 0 = Monday, 6 = Sunday.
// Соглашение Sunday=0 (time.Weekday, внешние клиенты) переводится только на границе.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

// WeekdayOf день недели даты t в её собственной зоне
func WeekdayOf(t time.Time) Weekday {
	return FromSundayZero(int(t.Weekday()))
}

// FromSundayZero переводит день из соглашения Sunday=0 в Monday=0
func FromSundayZero(day int) Weekday {
	return Weekday((day + 6) % 7)
}

// ToSundayZero переводит день из Monday=0 в соглашение Sunday=0
func ToSundayZero(day Weekday) int {
	return (int(day) + 1) % 7
}

// Shift сдвигает день недели на delta дней с заворотом
func (w Weekday) Shift(delta int) Weekday {
	return Weekday(((int(w)+delta)%7 + 7) % 7)
}

// WeekdaySet множество дней недели
type WeekdaySet []Weekday

// NewWeekdaySet нормализует дни: убирает дубли и сортирует
func NewWeekdaySet(days ...Weekday) WeekdaySet {
	seen := make(map[Weekday]struct{}, len(days))
	set := make(WeekdaySet, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		set = append(set, d)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

func (s WeekdaySet) Contains(day Weekday) bool {
	for _, d := range s {
		if d == day {
			return true
		}
	}
	return false
}

// Shift сдвигает все дни множества на delta
func (s WeekdaySet) Shift(delta int) WeekdaySet {
	if delta == 0 {
		return s
	}
	shifted := make([]Weekday, 0, len(s))
	for _, d := range s {
		shifted = append(shifted, d.Shift(delta))
	}
	return NewWeekdaySet(shifted...)
}

// Ints возвращает дни как []int для хранения
func (s WeekdaySet) Ints() []int {
	out := make([]int, 0, len(s))
	for _, d := range s {
		out = append(out, int(d))
	}
	return out
}

// WeekdaySetFromInts строит множество из []int (Monday=0)
func WeekdaySetFromInts(days []int) WeekdaySet {
	set := make([]Weekday, 0, len(days))
	for _, d := range days {
		set = append(set, Weekday(d))
	}
	return NewWeekdaySet(set...)
}

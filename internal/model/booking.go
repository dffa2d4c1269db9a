package model

import "time"

type BookingStatus string

const (
	BookingStatusScheduled  BookingStatus = "scheduled"   // Запланировано
	BookingStatusInProgress BookingStatus = "in_progress" // Идёт занятие
	BookingStatusCompleted  BookingStatus = "completed"   // Завершено
	BookingStatusCancelled  BookingStatus = "cancelled"   // Отменено
	BookingStatusNoShow     BookingStatus = "no_show"     // Студент не пришёл
)

// IsTerminal завершённые, отменённые и неявки никогда не блокируют слот
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoShow:
		return true
	}
	return false
}

// Booking бронирование. Движок читает его, жизненным циклом управляет внешний слой.
type Booking struct {
	ID              int64           `json:"id"`
	StudentID       int64           `json:"student_id"`
	AvailabilityRef AvailabilityRef `json:"availability_ref"`
	ScheduledAt     time.Time       `json:"scheduled_at"`
	DurationMinutes int             `json:"duration_minutes"`
	Status          BookingStatus   `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// EndsAt момент окончания занятия
func (b *Booking) EndsAt() time.Time {
	return b.ScheduledAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// MaterializedSlot реальная строка доступности на конкретную дату.
// Создаётся отдельной подсистемой (разовый слот или забронированная дата шаблона),
// движок только подмешивает её в выдачу.
type MaterializedSlot struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	ParentPatternID *uuid.UUID `json:"parent_pattern_id"` // nil для самостоятельного слота
	SpecificDate    time.Time  `json:"specific_date"`
	StartTime       Clock      `json:"start_time"` // в канонической зоне
	EndTime         Clock      `json:"end_time"`
	Timezone        string     `json:"timezone"`
	CourseID        *int64     `json:"course_id"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (s *MaterializedSlot) Ref() AvailabilityRef {
	return SlotRef(s.ID)
}

// DurationMinutes длительность слота
func (s *MaterializedSlot) DurationMinutes() int {
	return SpanMinutes(s.StartTime, s.EndTime)
}

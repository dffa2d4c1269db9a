package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Occurrence вхождение доступности на конкретную дату.
// Для шаблона вычисляется на лету и никогда не сохраняется.
type Occurrence struct {
	ID        string          `json:"id"` // {patternId}_{YYYY-MM-DD} или id слота
	Source    AvailabilityRef `json:"source"`
	PatternID uuid.UUID       `json:"pattern_id"` // uuid.Nil для самостоятельного слота
	OwnerID   int64           `json:"owner_id"`
	CourseID  *int64          `json:"course_id,omitempty"`
	Date      time.Time       `json:"date"`
	StartTime Clock           `json:"start_time"` // в канонической зоне
	EndTime   Clock           `json:"end_time"`
	Timezone  string          `json:"timezone"`
	StartsAt  time.Time       `json:"starts_at"`
	EndsAt    time.Time       `json:"ends_at"`
	Modified  bool            `json:"modified"`

	Display *DisplayTime `json:"display,omitempty"`

	HasConflict           bool    `json:"has_conflict"`
	ConflictingBookingIDs []int64 `json:"conflicting_booking_ids"`
	IsEditable            bool    `json:"is_editable"`
}

// DisplayTime время вхождения в зоне вызывающего
type DisplayTime struct {
	Timezone  string    `json:"timezone"`
	Date      time.Time `json:"date"`
	StartTime Clock     `json:"start_time"`
	EndTime   Clock     `json:"end_time"`
}

// IsVirtual true для вхождения, развёрнутого из шаблона
func (o *Occurrence) IsVirtual() bool {
	return o.Source.IsPattern()
}

// OccurrenceID формирует синтетический id вхождения
func OccurrenceID(patternID uuid.UUID, date time.Time) string {
	return patternID.String() + "_" + FormatDate(date)
}

// ParseOccurrenceID разбирает синтетический id: делит по последнему "_"
// и проверяет что хвост из 10 символов это YYYY-MM-DD.
func ParseOccurrenceID(id string) (uuid.UUID, time.Time, error) {
	idx := strings.LastIndex(id, "_")
	if idx < 0 {
		return uuid.Nil, time.Time{}, fmt.Errorf("occurrence id %q: missing date suffix", id)
	}

	suffix := id[idx+1:]
	if len(suffix) != len(DateLayout) {
		return uuid.Nil, time.Time{}, fmt.Errorf("occurrence id %q: date suffix must be YYYY-MM-DD", id)
	}
	date, err := ParseDate(suffix)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("occurrence id %q: %w", id, err)
	}

	patternID, err := uuid.Parse(id[:idx])
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("occurrence id %q: invalid pattern id: %w", id, err)
	}

	return patternID, date, nil
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// TimezoneStorageFormat как хранятся времена шаблона
type TimezoneStorageFormat string

const (
	// StorageFormatCanonical времена хранятся в канонической зоне
	StorageFormatCanonical TimezoneStorageFormat = "canonical"
	// StorageFormatLegacy строка создана до миграции: формат неизвестен,
	// строку нельзя разворачивать до явного прохода миграции
	StorageFormatLegacy TimezoneStorageFormat = ""
)

// Pattern шаблон регулярной доступности преподавателя
type Pattern struct {
	ID                 uuid.UUID  `json:"id"`
	OwnerID            int64      `json:"owner_id"`
	Weekday            Weekday    `json:"weekday"`             // основной день, 0 = Monday
	StartTime          Clock      `json:"start_time"`          // в канонической зоне
	EndTime            Clock      `json:"end_time"`            // в канонической зоне
	RecurrenceWeekdays WeekdaySet `json:"recurrence_weekdays"` // никогда не пустое
	PatternStartDate   *time.Time `json:"pattern_start_date"`  // включительно
	PatternEndDate     *time.Time `json:"pattern_end_date"`    // включительно, nil = без конца
	Timezone           string     `json:"timezone"`            // каноническая зона хранения
	OriginalTimezone   string     `json:"original_timezone"`   // зона создателя, только для отображения
	CourseID           *int64     `json:"course_id"`
	IsActive           bool       `json:"is_active"`

	TimezoneStorageFormat TimezoneStorageFormat `json:"timezone_storage_format"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DurationMinutes длительность одного вхождения
func (p *Pattern) DurationMinutes() int {
	return SpanMinutes(p.StartTime, p.EndTime)
}

// NeedsMigration true для строк без явного формата хранения
func (p *Pattern) NeedsMigration() bool {
	return p.TimezoneStorageFormat != StorageFormatCanonical
}

// Ref ссылка на шаблон как на источник доступности
func (p *Pattern) Ref() AvailabilityRef {
	return PatternRef(p.ID)
}

// CoversDate проверяет что дата лежит в границах шаблона
func (p *Pattern) CoversDate(date time.Time) bool {
	date = Date(date)
	if p.PatternStartDate != nil && date.Before(Date(*p.PatternStartDate)) {
		return false
	}
	if p.PatternEndDate != nil && date.After(Date(*p.PatternEndDate)) {
		return false
	}
	return true
}

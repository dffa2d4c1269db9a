package model

import (
	"time"

	"github.com/google/uuid"
)

type ExceptionKind string

const (
	ExceptionDeleted  ExceptionKind = "deleted"  // вхождение пропущено
	ExceptionModified ExceptionKind = "modified" // вхождение перенесено на другое время
)

func (k ExceptionKind) Valid() bool {
	return k == ExceptionDeleted || k == ExceptionModified
}

// Exception исключение для одной даты шаблона. Сам шаблон не меняется.
// На пару (ParentPatternID, ExceptionDate) приходится не больше одной строки.
type Exception struct {
	ID                uuid.UUID     `json:"id"`
	ParentPatternID   uuid.UUID     `json:"parent_pattern_id"`
	ExceptionDate     time.Time     `json:"exception_date"`
	Kind              ExceptionKind `json:"kind"`
	ModifiedStartTime *Clock        `json:"modified_start_time,omitempty"` // только для modified
	ModifiedEndTime   *Clock        `json:"modified_end_time,omitempty"`
	ModifiedTimezone  *string       `json:"modified_timezone,omitempty"`
	Reason            string        `json:"reason"`
	CreatedBy         int64         `json:"created_by"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Override переопределённые время и зона вхождения
type Override struct {
	StartTime Clock  `json:"start_time"`
	EndTime   Clock  `json:"end_time"`
	Timezone  string `json:"timezone"`
}

// Override возвращает переопределение для modified-исключения
func (e *Exception) Override() (Override, bool) {
	if e.Kind != ExceptionModified || e.ModifiedStartTime == nil || e.ModifiedEndTime == nil {
		return Override{}, false
	}
	tz := ""
	if e.ModifiedTimezone != nil {
		tz = *e.ModifiedTimezone
	}
	return Override{
		StartTime: *e.ModifiedStartTime,
		EndTime:   *e.ModifiedEndTime,
		Timezone:  tz,
	}, true
}

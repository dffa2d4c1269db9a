package model

import (
	"fmt"

	"github.com/google/uuid"
)

// SourceKind тип источника доступности
type SourceKind string

const (
	SourcePattern SourceKind = "pattern"
	SourceSlot    SourceKind = "slot"
)

// AvailabilityRef ссылка на источник доступности: шаблон или материализованный слот.
// Бронирования всегда ссылаются на один из двух вариантов, синтетический id вхождения
// разворачивается в id шаблона до сохранения бронирования.
type AvailabilityRef struct {
	Kind SourceKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

func PatternRef(id uuid.UUID) AvailabilityRef {
	return AvailabilityRef{Kind: SourcePattern, ID: id}
}

func SlotRef(id uuid.UUID) AvailabilityRef {
	return AvailabilityRef{Kind: SourceSlot, ID: id}
}

func (r AvailabilityRef) IsPattern() bool {
	return r.Kind == SourcePattern
}

func (r AvailabilityRef) IsSlot() bool {
	return r.Kind == SourceSlot
}

func (r AvailabilityRef) Valid() bool {
	return (r.Kind == SourcePattern || r.Kind == SourceSlot) && r.ID != uuid.Nil
}

func (r AvailabilityRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

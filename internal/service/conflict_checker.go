package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"go.uber.org/zap"
)

// ConflictReport состояние бронирований источника доступности
type ConflictReport struct {
	Ref          model.AvailabilityRef
	HasConflicts bool
	Blocking     []*model.Booking
	TotalLinked  int
}

// BookingIDs id блокирующих бронирований
func (r *ConflictReport) BookingIDs() []int64 {
	return bookingIDs(r.Blocking)
}

// ConflictChecker решает, мешают ли бронирования изменению доступности.
//
// Для шаблона CheckConflicts учитывает все бронирования, когда-либо привязанные к нему,
// без фильтра по дате. CheckOccurrence сужает проверку до окна одного вхождения.
type ConflictChecker struct {
	bookings BookingStore
	now      func() time.Time
	logger   *zap.Logger
}

func NewConflictChecker(bookings BookingStore, now func() time.Time, logger *zap.Logger) *ConflictChecker {
	if now == nil {
		now = time.Now
	}
	return &ConflictChecker{
		bookings: bookings,
		now:      now,
		logger:   logger,
	}
}

// IsBlocking блокирует ли бронирование изменения в момент now.
// scheduled блокирует пока не наступило, in_progress пока не закончилось,
// завершённые, отменённые и неявки не блокируют никогда.
func IsBlocking(b *model.Booking, now time.Time) bool {
	switch b.Status {
	case model.BookingStatusScheduled:
		return b.ScheduledAt.After(now)
	case model.BookingStatusInProgress:
		return b.EndsAt().After(now)
	default:
		return false
	}
}

// CheckConflicts проверяет все бронирования источника
func (c *ConflictChecker) CheckConflicts(ctx context.Context, ref model.AvailabilityRef) (*ConflictReport, error) {
	bookings, err := c.bookings.ListByRef(ctx, ref)
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	return c.Classify(ref, bookings), nil
}

// IsEditable источник можно менять, если нет блокирующих бронирований
func (c *ConflictChecker) IsEditable(ctx context.Context, ref model.AvailabilityRef) (bool, error) {
	report, err := c.CheckConflicts(ctx, ref)
	if err != nil {
		return false, err
	}
	return !report.HasConflicts, nil
}

// CheckOccurrence проверяет только бронирования, начало которых попадает в [StartsAt, EndsAt) вхождения
func (c *ConflictChecker) CheckOccurrence(ctx context.Context, occ model.Occurrence) (*ConflictReport, error) {
	bookings, err := c.bookings.ListByRef(ctx, occ.Source)
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	return c.ClassifyOccurrence(occ, bookings), nil
}

// Classify раскладывает заранее загруженные бронирования источника
func (c *ConflictChecker) Classify(ref model.AvailabilityRef, bookings []*model.Booking) *ConflictReport {
	now := c.now()
	report := &ConflictReport{Ref: ref, TotalLinked: len(bookings)}

	for _, b := range bookings {
		if IsBlocking(b, now) {
			report.Blocking = append(report.Blocking, b)
		}
	}
	report.HasConflicts = len(report.Blocking) > 0

	return report
}

// ClassifyOccurrence как Classify, но только по окну вхождения
func (c *ConflictChecker) ClassifyOccurrence(occ model.Occurrence, bookings []*model.Booking) *ConflictReport {
	var inWindow []*model.Booking
	for _, b := range bookings {
		if b.AvailabilityRef != occ.Source {
			continue
		}
		if !b.ScheduledAt.Before(occ.StartsAt) && b.ScheduledAt.Before(occ.EndsAt) {
			inWindow = append(inWindow, b)
		}
	}
	return c.Classify(occ.Source, inWindow)
}

// Annotate заполняет флаги конфликтов вхождения
func (c *ConflictChecker) Annotate(occ *model.Occurrence, report *ConflictReport) {
	occ.HasConflict = report.HasConflicts
	occ.ConflictingBookingIDs = report.BookingIDs()
	occ.IsEditable = !report.HasConflicts
}

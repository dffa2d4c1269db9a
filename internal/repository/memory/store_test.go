package memory

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/Freeeeeet/availability_engine/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExceptionStore_UniquePerDate(t *testing.T) {
	ctx := context.Background()
	s := New()
	patternID := uuid.New()

	first := &model.Exception{ID: uuid.New(), ParentPatternID: patternID, ExceptionDate: model.MustParseDate("2025-01-06"), Kind: model.ExceptionDeleted}
	require.NoError(t, s.Exceptions.Create(ctx, first))

	second := &model.Exception{ID: uuid.New(), ParentPatternID: patternID, ExceptionDate: model.MustParseDate("2025-01-06"), Kind: model.ExceptionDeleted}
	assert.ErrorIs(t, s.Exceptions.Create(ctx, second), repository.ErrDuplicate)

	got, err := s.Exceptions.GetByDate(ctx, patternID, model.MustParseDate("2025-01-06"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)

	missing, err := s.Exceptions.GetByDate(ctx, patternID, model.MustParseDate("2025-01-07"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPatternStore_DeleteCascadesExceptions(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := &model.Pattern{ID: uuid.New(), OwnerID: 1, RecurrenceWeekdays: model.NewWeekdaySet(model.Monday)}
	require.NoError(t, s.Patterns.Create(ctx, p))
	require.NoError(t, s.Exceptions.Create(ctx, &model.Exception{
		ID: uuid.New(), ParentPatternID: p.ID, ExceptionDate: model.MustParseDate("2025-01-06"), Kind: model.ExceptionDeleted,
	}))

	require.NoError(t, s.Patterns.Delete(ctx, p.ID))

	got, err := s.Patterns.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	excs, err := s.Exceptions.ListInRange(ctx, p.ID, model.MustParseDate("2025-01-01"), model.MustParseDate("2025-12-31"))
	require.NoError(t, err)
	assert.Empty(t, excs)
}

func TestPatternStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := &model.Pattern{ID: uuid.New(), OwnerID: 1, RecurrenceWeekdays: model.NewWeekdaySet(model.Monday)}
	require.NoError(t, s.Patterns.Create(ctx, p))

	got, err := s.Patterns.GetByID(ctx, p.ID)
	require.NoError(t, err)
	got.RecurrenceWeekdays[0] = model.Sunday

	again, err := s.Patterns.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NewWeekdaySet(model.Monday), again.RecurrenceWeekdays)
}

func TestExceptionStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	start, end, tz := model.MustParseClock("10:00"), model.MustParseClock("11:00"), "Asia/Tokyo"
	exc := &model.Exception{
		ID:                uuid.New(),
		ParentPatternID:   uuid.New(),
		ExceptionDate:     model.MustParseDate("2025-01-08"),
		Kind:              model.ExceptionModified,
		ModifiedStartTime: &start,
		ModifiedEndTime:   &end,
		ModifiedTimezone:  &tz,
	}
	require.NoError(t, s.Exceptions.Create(ctx, exc))
	start = model.MustParseClock("23:00")

	got, err := s.Exceptions.GetByDate(ctx, exc.ParentPatternID, exc.ExceptionDate)
	require.NoError(t, err)
	assert.Equal(t, "10:00", got.ModifiedStartTime.String())
	*got.ModifiedEndTime = model.MustParseClock("12:00")
	*got.ModifiedTimezone = "UTC"

	list, err := s.Exceptions.ListInRange(ctx, exc.ParentPatternID, exc.ExceptionDate, exc.ExceptionDate)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "11:00", list[0].ModifiedEndTime.String())
	assert.Equal(t, "Asia/Tokyo", *list[0].ModifiedTimezone)
}

func TestSlotStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	parent := uuid.New()
	course := int64(4)
	slot := &model.MaterializedSlot{
		ID:              uuid.New(),
		OwnerID:         7,
		ParentPatternID: &parent,
		SpecificDate:    model.MustParseDate("2025-01-08"),
		StartTime:       model.MustParseClock("09:00"),
		EndTime:         model.MustParseClock("10:00"),
		CourseID:        &course,
	}
	require.NoError(t, s.Slots.Create(ctx, slot))
	course = 5

	got, err := s.Slots.GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), *got.CourseID)
	*got.ParentPatternID = uuid.New()

	children, err := s.Slots.ListByParent(ctx, parent, nil)
	require.NoError(t, err)
	require.Len(t, children, 1)
	*children[0].CourseID = 9

	again, err := s.Slots.GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, parent, *again.ParentPatternID)
	assert.Equal(t, int64(4), *again.CourseID)
}

func TestBookingStore_ActiveUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	ref := model.PatternRef(uuid.New())
	at := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Bookings.Create(ctx, &model.Booking{StudentID: 1, AvailabilityRef: ref, ScheduledAt: at, DurationMinutes: 60, Status: model.BookingStatusScheduled}))
	assert.ErrorIs(t,
		s.Bookings.Create(ctx, &model.Booking{StudentID: 2, AvailabilityRef: ref, ScheduledAt: at, DurationMinutes: 60, Status: model.BookingStatusScheduled}),
		repository.ErrDuplicate)

	bookings, err := s.Bookings.ListByRef(ctx, ref)
	require.NoError(t, err)
	require.Len(t, bookings, 1)

	// после отмены момент снова свободен
	require.NoError(t, s.Bookings.UpdateStatus(ctx, bookings[0].ID, model.BookingStatusCancelled))
	assert.NoError(t, s.Bookings.Create(ctx, &model.Booking{StudentID: 2, AvailabilityRef: ref, ScheduledAt: at, DurationMinutes: 60, Status: model.BookingStatusScheduled}))
}

func TestSlotStore_ListByParent(t *testing.T) {
	ctx := context.Background()
	s := New()
	parent := uuid.New()

	for _, d := range []string{"2025-01-06", "2025-01-13", "2025-01-20"} {
		require.NoError(t, s.Slots.Create(ctx, &model.MaterializedSlot{
			ID: uuid.New(), OwnerID: 1, ParentPatternID: &parent, SpecificDate: model.MustParseDate(d),
			StartTime: model.MustParseClock("09:00"), EndTime: model.MustParseClock("10:00"), Timezone: "UTC", IsActive: true,
		}))
	}
	require.NoError(t, s.Slots.Create(ctx, &model.MaterializedSlot{
		ID: uuid.New(), OwnerID: 1, SpecificDate: model.MustParseDate("2025-01-07"),
		StartTime: model.MustParseClock("09:00"), EndTime: model.MustParseClock("10:00"), Timezone: "UTC",
	}))

	all, err := s.Slots.ListByParent(ctx, parent, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	since := model.MustParseDate("2025-01-13")
	future, err := s.Slots.ListByParent(ctx, parent, &since)
	require.NoError(t, err)
	assert.Len(t, future, 2)

	count, err := s.Slots.CountByParent(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	owned, err := s.Slots.ListByOwner(ctx, 1, model.MustParseDate("2025-01-06"), model.MustParseDate("2025-01-07"))
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteSeries_KeepsBookedChild(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createMWF(t)

	env.childSlot(t, p, "2025-01-06")
	booked := env.childSlot(t, p, "2025-01-08")
	env.childSlot(t, p, "2025-01-10")
	booking := env.book(t, booked.Ref(), time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC), model.BookingStatusScheduled)

	res, err := env.svc.DeleteSeries(ctx, p.ID, ScopeAll, 7)
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalInstances)
	assert.Equal(t, 2, res.DeletedCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.False(t, res.PatternDeleted)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, booked.Ref(), res.Skipped[0].Ref)
	assert.Equal(t, []int64{booking.ID}, res.Skipped[0].BookingIDs)

	stored, err := env.store.Patterns.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "pattern row kept while a child slot remains")
	assert.False(t, stored.IsActive)

	remaining, err := env.store.Slots.ListByParent(ctx, p.ID, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, booked.ID, remaining[0].ID)

	occs := env.list(t, "2025-01-06", "2025-01-10", "")
	require.Len(t, occs, 1)
	assert.Equal(t, booked.ID.String(), occs[0].ID)
	assert.True(t, occs[0].HasConflict)
}

func TestDeleteSeries_RemovesUnbookedPattern(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createMWF(t)

	_, err := env.svc.AddException(ctx, AddExceptionRequest{PatternID: p.ID, Date: model.MustParseDate("2025-01-06"), Kind: model.ExceptionDeleted})
	require.NoError(t, err)
	env.childSlot(t, p, "2025-01-08")

	res, err := env.svc.DeleteSeries(ctx, p.ID, ScopeAll, 7)
	require.NoError(t, err)
	assert.True(t, res.PatternDeleted)
	assert.Equal(t, 1, res.DeletedCount)
	assert.Zero(t, res.SkippedCount)

	stored, err := env.store.Patterns.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	excs, err := env.store.Exceptions.ListInRange(ctx, p.ID, model.MustParseDate("2025-01-01"), model.MustParseDate("2025-12-31"))
	require.NoError(t, err)
	assert.Empty(t, excs)

	_, err = env.svc.DeleteSeries(ctx, p.ID, ScopeAll, 7)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteSeries_FutureTruncatesStartedPattern(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.svc.CreatePattern(ctx, CreatePatternRequest{
		OwnerID:            7,
		Weekday:            0,
		StartTime:          "09:00",
		EndTime:            "10:00",
		RecurrenceWeekdays: []int{0, 2, 4},
		PatternStartDate:   "2024-12-01",
		Timezone:           "UTC",
	})
	require.NoError(t, err)

	past := env.childSlot(t, p, "2024-12-30")
	env.childSlot(t, p, "2025-01-03")

	res, err := env.svc.DeleteSeries(ctx, p.ID, ScopeFuture, 7)
	require.NoError(t, err)
	assert.False(t, res.PatternDeleted)
	assert.Equal(t, 1, res.DeletedCount)

	stored, err := env.store.Patterns.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.PatternEndDate)
	assert.Equal(t, "2024-12-31", model.FormatDate(*stored.PatternEndDate))
	assert.True(t, stored.IsActive)

	slot, err := env.store.Slots.GetByID(ctx, past.ID)
	require.NoError(t, err)
	assert.NotNil(t, slot, "past slot untouched by future scope")

	assert.Empty(t, env.list(t, "2025-01-01", "2025-01-31", ""))
}

func TestDeleteSeries_TombstonesAroundPatternBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createMWF(t)
	booking := env.book(t, p.Ref(), time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC), model.BookingStatusScheduled)

	res, err := env.svc.DeleteSeries(ctx, p.ID, ScopeAll, 7)
	require.NoError(t, err)

	assert.False(t, res.PatternDeleted)
	assert.Equal(t, 3, res.TombstonedCount)
	assert.Equal(t, 1, res.SkippedCount)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "2025-01-08", model.FormatDate(res.Skipped[0].Date))
	assert.Equal(t, []int64{booking.ID}, res.Skipped[0].BookingIDs)

	stored, err := env.store.Patterns.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.PatternEndDate)
	assert.Equal(t, "2025-01-08", model.FormatDate(*stored.PatternEndDate))

	occs := env.list(t, "2025-01-01", "2025-01-31", "")
	require.Len(t, occs, 1)
	assert.Equal(t, model.OccurrenceID(p.ID, model.MustParseDate("2025-01-08")), occs[0].ID)
	assert.True(t, occs[0].HasConflict)
}

func TestDeleteOccurrence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createMWF(t)
	booking := env.book(t, p.Ref(), time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC), model.BookingStatusScheduled)

	t.Run("booked occurrence refused", func(t *testing.T) {
		_, err := env.svc.DeleteOccurrence(ctx, model.OccurrenceID(p.ID, model.MustParseDate("2025-01-08")), 7, "")
		require.Error(t, err)

		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []int64{booking.ID}, conflict.BookingIDs())
	})

	t.Run("other occurrence of the same series", func(t *testing.T) {
		res, err := env.svc.DeleteOccurrence(ctx, model.OccurrenceID(p.ID, model.MustParseDate("2025-01-06")), 7, "")
		require.NoError(t, err)
		assert.Equal(t, 1, res.DeletedCount)
		require.NotNil(t, res.Exception)
		assert.Equal(t, model.ExceptionDeleted, res.Exception.Kind)
	})

	t.Run("date without occurrence", func(t *testing.T) {
		_, err := env.svc.DeleteOccurrence(ctx, model.OccurrenceID(p.ID, model.MustParseDate("2025-01-07")), 7, "")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("booked slot refused", func(t *testing.T) {
		slot := env.childSlot(t, p, "2025-01-14")
		env.book(t, slot.Ref(), time.Date(2025, 1, 14, 9, 0, 0, 0, time.UTC), model.BookingStatusScheduled)

		_, err := env.svc.DeleteOccurrence(ctx, slot.ID.String(), 7, "")
		assert.True(t, IsConflict(err))
	})

	t.Run("free slot deleted", func(t *testing.T) {
		slot := env.childSlot(t, p, "2025-01-16")

		res, err := env.svc.DeleteOccurrence(ctx, slot.ID.String(), 7, "")
		require.NoError(t, err)
		assert.Equal(t, 1, res.DeletedCount)

		stored, err := env.store.Slots.GetByID(ctx, slot.ID)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("unknown slot", func(t *testing.T) {
		_, err := env.svc.DeleteOccurrence(ctx, uuid.NewString(), 7, "")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestUpdateSeries_PinsBookedOccurrences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createMWF(t)
	env.book(t, p.Ref(), time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC), model.BookingStatusScheduled)

	res, err := env.svc.UpdateSeries(ctx, p.ID, SeriesFields{
		StartTime: mo.Some("10:00"),
		EndTime:   mo.Some("11:00"),
	}, ScopeAll, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Zero(t, res.UpdatedCount)

	stored, err := env.store.Patterns.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "10:00", stored.StartTime.String())
	assert.Equal(t, "11:00", stored.EndTime.String())

	occs := env.list(t, "2025-01-06", "2025-01-08", "")
	require.Len(t, occs, 2)

	assert.Equal(t, "10:00", occs[0].StartTime.String())
	assert.False(t, occs[0].Modified)

	assert.Equal(t, "09:00", occs[1].StartTime.String())
	assert.True(t, occs[1].Modified)
	assert.True(t, occs[1].HasConflict)
}

func TestUpdateSeries_DayShift(t *testing.T) {
	t.Run("refused while bookings exist", func(t *testing.T) {
		env := newTestEnv(t)
		p := env.createMWF(t)
		env.book(t, p.Ref(), time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC), model.BookingStatusScheduled)

		_, err := env.svc.UpdateSeries(context.Background(), p.ID, SeriesFields{
			StartTime: mo.Some("08:00"),
			EndTime:   mo.Some("09:00"),
			Timezone:  "Asia/Tokyo",
		}, ScopeAll, 7)
		assert.True(t, IsConflict(err))
	})

	t.Run("weekdays follow the new time", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		p := env.createMWF(t)

		// 08:00 в Токио это 23:00 UTC предыдущего дня
		_, err := env.svc.UpdateSeries(ctx, p.ID, SeriesFields{
			StartTime: mo.Some("08:00"),
			EndTime:   mo.Some("09:00"),
			Timezone:  "Asia/Tokyo",
		}, ScopeAll, 7)
		require.NoError(t, err)

		stored, err := env.store.Patterns.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "23:00", stored.StartTime.String())
		assert.Equal(t, "00:00", stored.EndTime.String())
		assert.Equal(t, model.NewWeekdaySet(model.Sunday, model.Tuesday, model.Thursday), stored.RecurrenceWeekdays)
		assert.Equal(t, "2024-12-31", model.FormatDate(*stored.PatternStartDate))
		assert.Equal(t, "Asia/Tokyo", stored.OriginalTimezone)

		occs := env.list(t, "2025-01-06", "2025-01-06", "Asia/Tokyo")
		require.Len(t, occs, 1)
		assert.Equal(t, "2025-01-05", model.FormatDate(occs[0].Date))
		assert.Equal(t, "08:00", occs[0].Display.StartTime.String())
		assert.Equal(t, "09:00", occs[0].Display.EndTime.String())
	})

	t.Run("child slots move with their local day", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		p := env.createMWF(t)
		child := env.childSlot(t, p, "2025-01-08")

		res, err := env.svc.UpdateSeries(ctx, p.ID, SeriesFields{
			StartTime: mo.Some("08:00"),
			EndTime:   mo.Some("09:00"),
			Timezone:  "Asia/Tokyo",
		}, ScopeAll, 7)
		require.NoError(t, err)
		assert.Equal(t, 1, res.UpdatedCount)

		// 09:00 UTC 8 января это 18:00 в Токио того же дня, 08:00 там же это 23:00 UTC 7 января
		stored, err := env.store.Slots.GetByID(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, "2025-01-07", model.FormatDate(stored.SpecificDate))
		assert.Equal(t, "23:00", stored.StartTime.String())
		assert.Equal(t, "00:00", stored.EndTime.String())

		occs := env.list(t, "2025-01-08", "2025-01-08", "Asia/Tokyo")
		require.Len(t, occs, 1)
		assert.Equal(t, child.ID.String(), occs[0].ID)
		assert.Equal(t, "08:00", occs[0].Display.StartTime.String())
	})
}

func TestUpdateSeries_ChildSlots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createMWF(t)

	free := env.childSlot(t, p, "2025-01-06")
	booked := env.childSlot(t, p, "2025-01-08")
	env.book(t, booked.Ref(), time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC), model.BookingStatusScheduled)

	course := int64(3)
	res, err := env.svc.UpdateSeries(ctx, p.ID, SeriesFields{CourseID: mo.Some(&course)}, ScopeFuture, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, 2, res.TotalInstances)

	slot, err := env.store.Slots.GetByID(ctx, free.ID)
	require.NoError(t, err)
	require.NotNil(t, slot.CourseID)
	assert.Equal(t, course, *slot.CourseID)

	slot, err = env.store.Slots.GetByID(ctx, booked.ID)
	require.NoError(t, err)
	assert.Nil(t, slot.CourseID)

	stored, err := env.store.Patterns.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CourseID)
	assert.Equal(t, course, *stored.CourseID)
}

func TestMutate_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createMWF(t)
	m := env.svc.Mutator()

	tests := []struct {
		name string
		req  MutationRequest
	}{
		{"empty target", MutationRequest{Scope: ScopeAll, Action: ActionDelete}},
		{"unknown action", MutationRequest{Target: p.Ref(), Scope: ScopeAll, Action: "archive"}},
		{"unknown scope", MutationRequest{Target: p.Ref(), Scope: "past", Action: ActionDelete}},
		{"series scope on a slot", MutationRequest{Target: model.SlotRef(uuid.New()), Scope: ScopeAll, Action: ActionDelete}},
		{"single without date", MutationRequest{Target: p.Ref(), Scope: ScopeSingle, Action: ActionDelete}},
		{"nothing to update", MutationRequest{Target: p.Ref(), Scope: ScopeAll, Action: ActionUpdate}},
		{"start without end", MutationRequest{Target: p.Ref(), Scope: ScopeAll, Action: ActionUpdate, Fields: SeriesFields{StartTime: mo.Some("10:00")}}},
		{"bad clock", MutationRequest{Target: p.Ref(), Scope: ScopeAll, Action: ActionUpdate, Fields: SeriesFields{StartTime: mo.Some("9am"), EndTime: mo.Some("10:00")}}},
		{"bad timezone", MutationRequest{Target: p.Ref(), Scope: ScopeAll, Action: ActionUpdate, Fields: SeriesFields{StartTime: mo.Some("09:00"), EndTime: mo.Some("10:00"), Timezone: "Nowhere/City"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Mutate(ctx, tt.req)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}

	_, err := env.svc.UpdateSeries(ctx, p.ID, SeriesFields{IsActive: mo.Some(true)}, ScopeSingle, 7)
	assert.True(t, IsValidation(err))
}

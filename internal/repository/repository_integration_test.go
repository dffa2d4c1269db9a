package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Freeeeeet/availability_engine/internal/app"
	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/Freeeeeet/availability_engine/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestPool подключается к TEST_DB_DSN, накатывает миграции и чистит таблицы
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator, err := app.NewMigrator(pool, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, migrator.Run(ctx))
	require.NoError(t, migrator.Close())

	_, err = pool.Exec(ctx, `TRUNCATE bookings, materialized_slots, availability_exceptions, availability_patterns`)
	require.NoError(t, err)

	return pool
}

func testPattern() *model.Pattern {
	start := model.MustParseDate("2025-01-01")
	course := int64(4)
	return &model.Pattern{
		ID:                    uuid.New(),
		OwnerID:               7,
		Weekday:               model.Monday,
		StartTime:             model.MustParseClock("09:00"),
		EndTime:               model.MustParseClock("10:30"),
		RecurrenceWeekdays:    model.NewWeekdaySet(model.Monday, model.Wednesday, model.Friday),
		PatternStartDate:      &start,
		Timezone:              "UTC",
		OriginalTimezone:      "America/Chicago",
		CourseID:              &course,
		IsActive:              true,
		TimezoneStorageFormat: model.StorageFormatCanonical,
	}
}

func TestPatternRepository(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := repository.NewPatternRepository(pool, zaptest.NewLogger(t))

	p := testPattern()
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.StartTime, got.StartTime)
	assert.Equal(t, p.EndTime, got.EndTime)
	assert.Equal(t, p.RecurrenceWeekdays, got.RecurrenceWeekdays)
	assert.Equal(t, "2025-01-01", model.FormatDate(*got.PatternStartDate))
	assert.Nil(t, got.PatternEndDate)
	assert.Equal(t, "America/Chicago", got.OriginalTimezone)
	assert.Equal(t, model.StorageFormatCanonical, got.TimezoneStorageFormat)
	require.NotNil(t, got.CourseID)
	assert.Equal(t, int64(4), *got.CourseID)

	end := model.MustParseDate("2025-06-30")
	got.PatternEndDate = &end
	got.IsActive = false
	require.NoError(t, repo.Update(ctx, got))

	owned, err := repo.ListByOwner(ctx, 7)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.False(t, owned[0].IsActive)
	assert.Equal(t, "2025-06-30", model.FormatDate(*owned[0].PatternEndDate))

	legacy := testPattern()
	legacy.TimezoneStorageFormat = model.StorageFormatLegacy
	require.NoError(t, repo.Create(ctx, legacy))

	pending, err := repo.ListNeedingMigration(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, legacy.ID, pending[0].ID)

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestExceptionRepository(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	patterns := repository.NewPatternRepository(pool, zaptest.NewLogger(t))
	repo := repository.NewExceptionRepository(pool)

	p := testPattern()
	require.NoError(t, patterns.Create(ctx, p))

	start, end := model.MustParseClock("12:00"), model.MustParseClock("13:00")
	tz := "Europe/Berlin"
	modified := &model.Exception{
		ID:                uuid.New(),
		ParentPatternID:   p.ID,
		ExceptionDate:     model.MustParseDate("2025-01-08"),
		Kind:              model.ExceptionModified,
		ModifiedStartTime: &start,
		ModifiedEndTime:   &end,
		ModifiedTimezone:  &tz,
		CreatedBy:         7,
	}
	require.NoError(t, repo.Create(ctx, modified))

	deleted := &model.Exception{
		ID:              uuid.New(),
		ParentPatternID: p.ID,
		ExceptionDate:   model.MustParseDate("2025-01-06"),
		Kind:            model.ExceptionDeleted,
		CreatedBy:       7,
	}
	require.NoError(t, repo.Create(ctx, deleted))

	dup := *deleted
	dup.ID = uuid.New()
	assert.ErrorIs(t, repo.Create(ctx, &dup), repository.ErrDuplicate)

	got, err := repo.GetByDate(ctx, p.ID, model.MustParseDate("2025-01-08"))
	require.NoError(t, err)
	require.NotNil(t, got)
	override, ok := got.Override()
	require.True(t, ok)
	assert.Equal(t, model.Override{StartTime: start, EndTime: end, Timezone: tz}, override)

	list, err := repo.ListInRange(ctx, p.ID, model.MustParseDate("2025-01-01"), model.MustParseDate("2025-01-31"))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, deleted.ID, list[0].ID)

	require.NoError(t, repo.Delete(ctx, deleted.ID))

	// удаление шаблона каскадно удаляет исключения
	require.NoError(t, patterns.Delete(ctx, p.ID))
	n, err := repo.DeleteByPattern(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSlotRepository(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := repository.NewSlotRepository(pool)

	parent := uuid.New()
	child := &model.MaterializedSlot{
		ID:              uuid.New(),
		OwnerID:         7,
		ParentPatternID: &parent,
		SpecificDate:    model.MustParseDate("2025-01-08"),
		StartTime:       model.MustParseClock("09:00"),
		EndTime:         model.MustParseClock("10:00"),
		Timezone:        "UTC",
		IsActive:        true,
	}
	standalone := &model.MaterializedSlot{
		ID:           uuid.New(),
		OwnerID:      7,
		SpecificDate: model.MustParseDate("2025-01-07"),
		StartTime:    model.MustParseClock("08:00"),
		EndTime:      model.MustParseClock("09:00"),
		Timezone:     "UTC",
		IsActive:     true,
	}
	require.NoError(t, repo.Create(ctx, child))
	require.NoError(t, repo.Create(ctx, standalone))

	owned, err := repo.ListByOwner(ctx, 7, model.MustParseDate("2025-01-01"), model.MustParseDate("2025-01-31"))
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, standalone.ID, owned[0].ID)

	since := model.MustParseDate("2025-01-09")
	future, err := repo.ListByParent(ctx, parent, &since)
	require.NoError(t, err)
	assert.Empty(t, future)

	onDate, err := repo.ListByParentAndDate(ctx, parent, model.MustParseDate("2025-01-08"))
	require.NoError(t, err)
	require.Len(t, onDate, 1)

	count, err := repo.CountByParent(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	child.StartTime = model.MustParseClock("11:00")
	child.EndTime = model.MustParseClock("12:00")
	require.NoError(t, repo.Update(ctx, child))

	got, err := repo.GetByID(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "11:00", got.StartTime.String())

	require.NoError(t, repo.Delete(ctx, child.ID))
	got, err = repo.GetByID(ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBookingRepository_ActiveUniqueness(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := repository.NewBookingRepository(pool)

	ref := model.PatternRef(uuid.New())
	at := time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC)

	first := &model.Booking{StudentID: 1, AvailabilityRef: ref, ScheduledAt: at, DurationMinutes: 60, Status: model.BookingStatusScheduled}
	require.NoError(t, repo.Create(ctx, first))
	assert.NotZero(t, first.ID)

	second := &model.Booking{StudentID: 2, AvailabilityRef: ref, ScheduledAt: at, DurationMinutes: 60, Status: model.BookingStatusScheduled}
	assert.ErrorIs(t, repo.Create(ctx, second), repository.ErrDuplicate)

	require.NoError(t, repo.UpdateStatus(ctx, first.ID, model.BookingStatusCancelled))
	require.NoError(t, repo.Create(ctx, second))

	list, err := repo.ListByRef(ctx, ref)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ref, list[0].AvailabilityRef)

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, got.Status)
	assert.True(t, got.ScheduledAt.Equal(at))
}

package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/Freeeeeet/availability_engine/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `
	id, student_id, availability_kind, availability_id, scheduled_at, duration_minutes, status,
	created_at, updated_at`

type BookingRepository struct {
	*base.Repository
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт новое бронирование.
// Активное бронирование на тот же источник и момент уже есть: ErrDuplicate.
func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (student_id, availability_kind, availability_id, scheduled_at, duration_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(
		ctx, query,
		booking.StudentID,
		string(booking.AvailabilityRef.Kind),
		booking.AvailabilityRef.ID,
		booking.ScheduledAt,
		booking.DurationMinutes,
		string(booking.Status),
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)

	if base.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}

	return nil
}

// GetByID получает бронирование по ID
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.QueryRow(ctx, query, id))
	if base.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get booking by id: %w", err)
	}

	return booking, nil
}

// ListByRef получает все бронирования, привязанные к источнику доступности
func (r *BookingRepository) ListByRef(ctx context.Context, ref model.AvailabilityRef) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE availability_kind = $1 AND availability_id = $2
		ORDER BY scheduled_at
	`

	rows, err := r.Query(ctx, query, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by ref: %w", err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bookings by ref: %w", err)
	}

	return bookings, nil
}

// UpdateStatus обновляет статус бронирования
func (r *BookingRepository) UpdateStatus(ctx context.Context, id int64, status model.BookingStatus) error {
	query := `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`

	if _, err := r.ExecAffected(ctx, query, string(status), id); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}

	return nil
}

func scanBooking(row scanner) (*model.Booking, error) {
	var (
		booking model.Booking
		kind    string
		status  string
	)

	err := row.Scan(
		&booking.ID,
		&booking.StudentID,
		&kind,
		&booking.AvailabilityRef.ID,
		&booking.ScheduledAt,
		&booking.DurationMinutes,
		&status,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.AvailabilityRef.Kind = model.SourceKind(kind)
	booking.Status = model.BookingStatus(status)

	return &booking, nil
}

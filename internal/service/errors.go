package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Freeeeeet/availability_engine/internal/model"
)

var (
	// ErrNotFound шаблон, исключение, слот или вхождение не существует
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExcepted на эту дату уже есть исключение. Вызывающие считают это успехом.
	ErrAlreadyExcepted = errors.New("date already has an exception")
)

// ValidationError некорректный ввод. Не повторять.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// ValidationErrors все ошибки валидации одного запроса
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, v := range e {
		parts = append(parts, v.Error())
	}
	return strings.Join(parts, "; ")
}

// NotFoundError ErrNotFound с указанием ресурса
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func notFound(resource string, id fmt.Stringer) error {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

// ConflictError изменение отклонено из-за активных бронирований
type ConflictError struct {
	Message  string
	Blocking []*model.Booking
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s (%d blocking bookings)", e.Message, len(e.Blocking))
}

// BookingIDs id блокирующих бронирований
func (e *ConflictError) BookingIDs() []int64 {
	return bookingIDs(e.Blocking)
}

// StorageError временная ошибка хранилища, операцию можно повторить
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Temporary всегда true: хранилище может восстановиться
func (e *StorageError) Temporary() bool {
	return true
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsValidation проверяет что err это ошибка валидации
func IsValidation(err error) bool {
	var single *ValidationError
	var many ValidationErrors
	return errors.As(err, &single) || errors.As(err, &many)
}

// IsConflict проверяет что err это ConflictError
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// IsRetryable проверяет что операцию можно повторить
func IsRetryable(err error) bool {
	var storage *StorageError
	return errors.As(err, &storage) && storage.Temporary()
}

func bookingIDs(bookings []*model.Booking) []int64 {
	ids := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	return ids
}

package service

import (
	"errors"
	"fmt"

	"github.com/Freeeeeet/availability_engine/internal/model"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// CreatePatternRequest запрос на создание шаблона.
// Времена и даты заданы в зоне Timezone создателя, дни недели Monday=0.
type CreatePatternRequest struct {
	OwnerID            int64  `validate:"gt=0"`
	Weekday            int    `validate:"min=0,max=6"`
	StartTime          string `validate:"required,hhmm"`
	EndTime            string `validate:"required,hhmm"`
	RecurrenceWeekdays []int  `validate:"omitempty,unique,dive,min=0,max=6"`
	PatternStartDate   string `validate:"omitempty,datetime=2006-01-02"`
	PatternEndDate     string `validate:"omitempty,datetime=2006-01-02"`
	Timezone           string `validate:"required,timezone"`
	CourseID           *int64 `validate:"omitempty,gt=0"`
}

// OverrideFields новые время и зона для одного вхождения
type OverrideFields struct {
	StartTime string `validate:"required,hhmm"`
	EndTime   string `validate:"required,hhmm"`
	Timezone  string `validate:"omitempty,timezone"` // пусто: зона шаблона
}

// Validator проверяет запросы движка
type Validator struct {
	validate *validator.Validate
	logger   *zap.Logger
}

func NewValidator(logger *zap.Logger) *Validator {
	v := validator.New()

	if err := v.RegisterValidation("hhmm", validateClock); err != nil {
		logger.Fatal("Failed to register 'hhmm' validator", zap.Error(err))
	}

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

func validateClock(fl validator.FieldLevel) bool {
	_, err := model.ParseClock(fl.Field().String())
	return err == nil
}

// Struct проверяет запрос по тегам
func (v *Validator) Struct(req any) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

// Var проверяет одно значение, field попадает в ValidationError
func (v *Validator) Var(field string, value any, tag string) error {
	if err := v.validate.Var(value, tag); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			errs := translateValidationErrors(validationErrs)
			for _, e := range errs {
				e.Field = field
			}
			return errs
		}
		return err
	}
	return nil
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var out ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = "is required"
		case "gt":
			message = fmt.Sprintf("must be greater than %s", err.Param())
		case "min", "max":
			message = "must be a weekday from 0 (Monday) to 6 (Sunday)"
		case "unique":
			message = "must not contain duplicates"
		case "hhmm":
			message = "must be a time in HH:MM 24-hour format"
		case "timezone":
			message = "must be a valid IANA timezone"
		case "datetime":
			message = "must be a date in YYYY-MM-DD format"
		}

		out = append(out, &ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return out
}

// checkTimeRange start строго раньше end во времени создателя
func checkTimeRange(start, end model.Clock) error {
	if !start.Before(end) {
		return &ValidationError{Field: "EndTime", Message: "must be after StartTime"}
	}
	return nil
}

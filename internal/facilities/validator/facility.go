package validator

import (
	"errors"
	"fmt"
	"spacebook/pkg/logger"
	"spacebook/pkg/model"
	"spacebook/pkg/timewindow"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type FacilityValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewFacilityValidator(log *logger.Logger) *FacilityValidator {
	v := validator.New()
	v.RegisterStructValidation(validateDateRange, model.DateRange{})

	log.Debug("Facility validator initialized successfully")

	return &FacilityValidator{
		validate: v,
		logger:   log,
	}
}

func validateDateRange(sl validator.StructLevel) {
	r := sl.Current().Interface().(model.DateRange)
	if r.From == "" || r.To == "" {
		return
	}
	from, errFrom := timewindow.ParseDate(r.From, time.UTC)
	to, errTo := timewindow.ParseDate(r.To, time.UTC)
	if errFrom != nil || errTo != nil {
		return
	}
	if to.Before(from) {
		sl.ReportError(r.To, "To", "to", "date_order", "")
	}
}

func (v *FacilityValidator) Validate(facility *model.Facility) error {
	return v.check(facility)
}

func (v *FacilityValidator) ValidateUpdate(update *model.FacilityUpdate) error {
	return v.check(update)
}

func (v *FacilityValidator) ValidateRange(r *model.DateRange) error {
	return v.check(r)
}

func (v *FacilityValidator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *FacilityValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "unique":
			message = fmt.Sprintf("%s must not contain duplicates", err.Field())
		case "datetime":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		case "date_order":
			message = "to must not be before from"
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}

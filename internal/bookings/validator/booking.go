package validator

import (
	"errors"
	"fmt"
	"reflect"
	"spacebook/pkg/logger"
	"spacebook/pkg/model"
	"strings"

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

// BookingValidator checks the shape of booking and hold requests. Rules
// that need the clock, the facility or other bookings live in admission.
type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)

	if err := v.RegisterValidation("equipment_item", validateEquipmentItem); err != nil {
		log.Fatal("Failed to register 'equipment_item' validator",
			"error", err,
		)
	}

	log.Debug("Booking validator initialized successfully")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func validateEquipmentItem(fl validator.FieldLevel) bool {
	item, ok := fl.Field().Interface().(model.EquipmentItem)
	if !ok {
		return false
	}
	return item.Known()
}

func (v *BookingValidator) ValidateRequest(req *model.BookingRequest) error {
	if err := v.check(req); err != nil {
		return err
	}
	if !req.End.After(req.Start) {
		return ValidationErrors{{Field: "end", Message: "end must be after start"}}
	}
	return nil
}

func (v *BookingValidator) ValidateUpdate(update *model.BookingUpdate) error {
	if update.Empty() {
		return ValidationErrors{{Field: "body", Message: "at least one field must be provided"}}
	}
	if err := v.check(update); err != nil {
		return err
	}
	if update.Start != nil && update.End != nil && !update.End.After(*update.Start) {
		return ValidationErrors{{Field: "end", Message: "end must be after start"}}
	}
	return nil
}

func (v *BookingValidator) ValidateHold(req *model.HoldRequest) error {
	if err := v.check(req); err != nil {
		return err
	}
	if !req.End.After(req.Start) {
		return ValidationErrors{{Field: "end", Message: "end must be after start"}}
	}
	return nil
}

func (v *BookingValidator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
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
		case "gte":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "lte":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "unique":
			message = fmt.Sprintf("%s must not contain duplicates", err.Field())
		case "equipment_item":
			message = fmt.Sprintf("%q is not a known equipment item", err.Value())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}

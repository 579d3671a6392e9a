package validator

import (
	"errors"
	"fmt"
	"regexp"

	"clinicflow/pkg/model"

	"github.com/go-playground/validator/v10"
)

var patientRefPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

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
	return fmt.Sprintf("validation failed: %d error(s)", len(v))
}

// Details shapes the errors for an AppError's details map.
func (v ValidationErrors) Details() map[string]any {
	fields := make(map[string]any, len(v))
	for _, e := range v {
		fields[e.Field] = e.Message
	}
	return map[string]any{"fields": fields}
}

type QueueValidator struct {
	validate    *validator.Validate
	minPriority int
	maxPriority int
}

func NewQueueValidator(minPriority, maxPriority int) *QueueValidator {
	v := validator.New()
	_ = v.RegisterValidation("patient_ref", func(fl validator.FieldLevel) bool {
		return patientRefPattern.MatchString(fl.Field().String())
	})

	return &QueueValidator{
		validate:    v,
		minPriority: minPriority,
		maxPriority: maxPriority,
	}
}

func (v *QueueValidator) ValidateRegister(req *model.RegisterRequest) error {
	if err := v.check(req); err != nil {
		return err
	}
	if req.Priority != nil {
		return v.checkPriority(*req.Priority)
	}
	return nil
}

func (v *QueueValidator) ValidateCallNext(req *model.CallNextRequest) error {
	return v.check(req)
}

func (v *QueueValidator) ValidateCancel(req *model.CancelRequest) error {
	return v.check(req)
}

func (v *QueueValidator) ValidatePriority(req *model.PriorityUpdate) error {
	if err := v.check(req); err != nil {
		return err
	}
	return v.checkPriority(*req.Priority)
}

func (v *QueueValidator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *QueueValidator) checkPriority(priority int) error {
	if priority < v.minPriority || priority > v.maxPriority {
		return ValidationErrors{{
			Field:   "priority",
			Message: fmt.Sprintf("must be between %d and %d", v.minPriority, v.maxPriority),
		}}
	}
	return nil
}

func (v *QueueValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		validationErrors = append(validationErrors, ValidationError{
			Field:   jsonName(err.Field()),
			Message: message(err),
		})
	}

	return validationErrors
}

var jsonNames = map[string]string{
	"PatientRef": "patient_ref",
	"Date":       "date",
	"Priority":   "priority",
	"Note":       "note",
	"Reason":     "reason",
}

func jsonName(field string) string {
	if name, ok := jsonNames[field]; ok {
		return name
	}
	return field
}

func message(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		if err.Kind().String() == "string" {
			return fmt.Sprintf("must be at least %s characters", err.Param())
		}
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		if err.Kind().String() == "string" {
			return fmt.Sprintf("must be at most %s characters", err.Param())
		}
		return fmt.Sprintf("must be at most %s", err.Param())
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "patient_ref":
		return "must contain only letters, digits, '.', '_', ':' or '-'"
	default:
		return fmt.Sprintf("failed %s validation", err.Tag())
	}
}

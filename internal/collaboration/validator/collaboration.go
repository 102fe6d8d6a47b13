package validator

import (
	"dashcollab/pkg/model"
	"errors"
	"fmt"
	"reflect"
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
	return fmt.Sprintf("validation failed: %d error(s)", len(v))
}

// Identifiers end up inside composite store keys, so they may not carry the separator.
const identifierTag = "identifier"

type sessionInput struct {
	DashboardID string            `json:"dashboard_id" validate:"identifier"`
	UserID      string            `json:"user_id" validate:"identifier"`
	UserName    string            `json:"user_name" validate:"max=256"`
	UserEmail   string            `json:"user_email" validate:"omitempty,email,max=320"`
	ClientInfo  map[string]string `json:"client_info" validate:"max=20,dive,keys,required,max=64,endkeys,max=512"`
}

type sessionTarget struct {
	DashboardID string `json:"dashboard_id" validate:"identifier"`
	UserID      string `json:"user_id" validate:"identifier"`
}

type widgetTarget struct {
	DashboardID string `json:"dashboard_id" validate:"identifier"`
	WidgetID    string `json:"widget_id" validate:"identifier"`
}

type lockTarget struct {
	DashboardID string `json:"dashboard_id" validate:"identifier"`
	WidgetID    string `json:"widget_id" validate:"identifier"`
	UserID      string `json:"user_id" validate:"identifier"`
}

type CollaborationValidator struct {
	validate *validator.Validate
}

func NewCollaborationValidator() *CollaborationValidator {
	v := validator.New()

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	v.RegisterAlias(identifierTag, "required,max=128,excludes="+model.KeySeparator)

	return &CollaborationValidator{
		validate: v,
	}
}

func (v *CollaborationValidator) ValidateSessionStart(start *model.SessionStart) error {
	return v.check(&sessionInput{
		DashboardID: start.DashboardID,
		UserID:      start.UserID,
		UserName:    start.UserName,
		UserEmail:   start.UserEmail,
		ClientInfo:  start.ClientInfo,
	})
}

func (v *CollaborationValidator) ValidateSessionTarget(dashboardID, userID string) error {
	return v.check(&sessionTarget{DashboardID: dashboardID, UserID: userID})
}

func (v *CollaborationValidator) ValidateWidgetTarget(dashboardID, widgetID string) error {
	return v.check(&widgetTarget{DashboardID: dashboardID, WidgetID: widgetID})
}

func (v *CollaborationValidator) ValidateLockTarget(dashboardID, widgetID, userID string) error {
	return v.check(&lockTarget{DashboardID: dashboardID, WidgetID: widgetID, UserID: userID})
}

func (v *CollaborationValidator) ValidateDashboardID(dashboardID string) error {
	if err := v.validate.Var(dashboardID, identifierTag); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			errs := v.translateValidationErrors(validationErrs)
			for i := range errs {
				errs[i].Field = "dashboard_id"
			}
			return errs
		}
		return err
	}
	return nil
}

// ValidateLockTTL checks a requested lock duration. Zero means "use the default".
func (v *CollaborationValidator) ValidateLockTTL(ttl, minTTL, maxTTL time.Duration) error {
	if ttl == 0 {
		return nil
	}
	if ttl%time.Second != 0 {
		return ValidationErrors{{Field: "lock_duration", Message: "must be a whole number of seconds"}}
	}
	if ttl < minTTL || ttl > maxTTL {
		return ValidationErrors{{
			Field:   "lock_duration",
			Message: fmt.Sprintf("must be between %d and %d seconds", int(minTTL/time.Second), int(maxTTL/time.Second)),
		}}
	}
	return nil
}

func (v *CollaborationValidator) check(input any) error {
	if err := v.validate.Struct(input); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *CollaborationValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message(err),
		})
	}

	return validationErrors
}

func message(err validator.FieldError) string {
	switch err.ActualTag() {
	case "required":
		return "is required"
	case "max":
		if err.Kind() == reflect.Map {
			return fmt.Sprintf("must have at most %s entries", err.Param())
		}
		return fmt.Sprintf("must be at most %s characters", err.Param())
	case "excludes":
		return fmt.Sprintf("must not contain %q", err.Param())
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %s validation", err.ActualTag())
	}
}

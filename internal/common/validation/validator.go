// Package validation checks request parameters declared with struct tags,
// using go-playground/validator, and reports failures as validation
// AppErrors.
package validation

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"workspace-assistant/internal/common/errors"
)

// Validator wraps a configured go-playground validator
type Validator struct {
	validate *validator.Validate
}

// FieldError is one failed rule
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// NewValidator creates a validator that names fields by their query or
// json tag
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"query", "json"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	// same-site absolute path, used for post sign-in redirects
	_ = v.RegisterValidation("local_path", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
	})

	return &Validator{validate: v}
}

// ValidateStruct validates s against its validate tags
func (v *Validator) ValidateStruct(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// Fields extracts the individual failures from a ValidateStruct error
func Fields(err error) []FieldError {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		return nil
	}
	fields, _ := appErr.Context["fields"].([]FieldError)
	return fields
}

func formatValidationErrors(err error) error {
	var validationErrs validator.ValidationErrors
	if !stderrors.As(err, &validationErrs) {
		return errors.ValidationError(err.Error())
	}

	fields := make([]FieldError, 0, len(validationErrs))
	messages := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msg := formatFieldError(fe)
		fields = append(fields, FieldError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param(), Message: msg})
		messages = append(messages, msg)
	}

	message := messages[0]
	if len(messages) > 1 {
		message = fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
	}
	return errors.ValidationError(message).WithContext("fields", fields)
}

// formatFieldError formats go-playground/validator field errors into readable messages
func formatFieldError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", err.Field())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", err.Field(), err.Param())
	case "datetime":
		return fmt.Sprintf("field '%s' must be a timestamp in the form %s", err.Field(), err.Param())
	case "local_path":
		return fmt.Sprintf("field '%s' must be a path on this site", err.Field())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", err.Field(), err.Tag())
	}
}

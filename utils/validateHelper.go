package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func GetValidator() *validator.Validate {
	return validate
}

// ValidateInput checks a free-text identifier or name: non-empty after trimming
// and at most maxLen characters.
func ValidateInput(value string, maxLen int) error {
	err := validate.Var(strings.TrimSpace(value), fmt.Sprintf("required,max=%d", maxLen))
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "max" {
		return fmt.Errorf("%w: input too long (max. %d characters)", ErrorInvalidInput, maxLen)
	}
	return fmt.Errorf("%w: value is required", ErrorInvalidInput)
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["error"] = err.Error()
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

package usecase

import (
	"fmt"
	"strings"

	"github.com/xavierca1/leadflow/internal/infra/phone"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateLeadContact checks what a lead needs before it may be stored: an
// item id and a phone number that can plausibly be dialled.
func ValidateLeadContact(externalID, phoneNumber, name string) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(externalID) == "" {
		errors = append(errors, ValidationError{"external_id", "is required"})
	}

	if strings.TrimSpace(phoneNumber) == "" {
		errors = append(errors, ValidationError{"phone", "is required"})
	} else if !isValidPhoneNumber(phoneNumber) {
		errors = append(errors, ValidationError{"phone", "must be a valid phone number"})
	}

	if len(name) > 255 {
		errors = append(errors, ValidationError{"name", "must not exceed 255 characters"})
	}

	return errors
}

func joinValidationErrors(errs []ValidationError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// E.164 allows at most 15 digits; anything under 8 is not a subscriber number.
func isValidPhoneNumber(number string) bool {
	digits := phone.Digits(number)
	return len(digits) >= 8 && len(digits) <= 15
}

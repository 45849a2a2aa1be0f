package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/inkwell/inkwell-api/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("role", validateRole); err != nil {
		panic(fmt.Sprintf("failed to register role validator: %v", err))
	}
	if err := Validate.RegisterValidation("tier_name", validateTierName); err != nil {
		panic(fmt.Sprintf("failed to register tier_name validator: %v", err))
	}
}

// validateRole validates that a string is a known profile role
func validateRole(fl validator.FieldLevel) bool {
	return models.Role(fl.Field().String()).Valid()
}

// validateTierName accepts lowercase letters, digits, '-' and '_' (e.g. "admin-monitoring").
func validateTierName(fl validator.FieldLevel) bool {
	return IsTierName(fl.Field().String())
}

// IsTierName reports whether name is usable as a rate limit tier name.
func IsTierName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateRole validates a Role string value
func ValidateRole(value string) error {
	if !models.Role(value).Valid() {
		return fmt.Errorf("invalid role: %s (must be 'admin', 'author', or 'reader')", value)
	}
	return nil
}

// FieldErrors flattens validator errors into "field: tag" messages suitable for a JSON response.
func FieldErrors(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		if err == nil {
			return nil
		}
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			out = append(out, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return out
}

package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

const maxThesisLength = 4000

var (
	symbolPattern    = regexp.MustCompile(`^[A-Z0-9]{1,16}(/[A-Z0-9]{1,16})?$`)
	submitterPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	uuidPattern      = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)
)

// ValidateSymbol checks the asset symbol format (e.g. NEO or NEO/USDT).
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !symbolPattern.MatchString(strings.ToUpper(symbol)) {
		return fmt.Errorf("invalid symbol format (uppercase alphanumeric, optional /PAIR, max 16 chars each)")
	}
	return nil
}

// ValidateThesis checks the free-text thesis is present and bounded.
func ValidateThesis(thesis string) error {
	if strings.TrimSpace(thesis) == "" {
		return fmt.Errorf("thesis cannot be empty")
	}
	if len(thesis) > maxThesisLength {
		return fmt.Errorf("thesis too long (max %d chars)", maxThesisLength)
	}
	return nil
}

// ValidateSubmitterID validates submitter identity format
func ValidateSubmitterID(submitter string) error {
	if submitter == "" {
		return fmt.Errorf("submitter ID cannot be empty")
	}
	if !submitterPattern.MatchString(submitter) {
		return fmt.Errorf("invalid submitter ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateSubmissionID validates the UUID submission identifier.
func ValidateSubmissionID(id string) error {
	if id == "" {
		return fmt.Errorf("submission ID cannot be empty")
	}
	if !uuidPattern.MatchString(strings.ToLower(id)) {
		return fmt.Errorf("invalid submission ID format")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

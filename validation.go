package usage

import (
	"fmt"
)

// ErrorType classifies a recording failure reported through an error metric.
type ErrorType string

const (
	ErrorTypeInvalidValue    ErrorType = "invalid_value"
	ErrorTypeInvalidLabel    ErrorType = "invalid_label"
	ErrorTypeInvalidState    ErrorType = "invalid_state"
	ErrorTypeInvalidOverflow ErrorType = "invalid_overflow"
)

// ValidationResult is the outcome of validating a candidate metric value.
// The zero value is a success.
type ValidationResult struct {
	// Message describes the failure. Empty on success.
	Message string
	// ErrorType is set when the failure must be counted in an error metric.
	// Failures without a type are only logged.
	ErrorType ErrorType

	failed bool
}

// OK reports whether validation succeeded.
func (r ValidationResult) OK() bool { return !r.failed }

func validationFailure(errType ErrorType, format string, args ...interface{}) ValidationResult {
	return ValidationResult{
		Message:   fmt.Sprintf(format, args...),
		ErrorType: errType,
		failed:    true,
	}
}

// ValidationError carries a failed ValidationResult out of constructors that
// return an error.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	if e.Result.ErrorType == "" {
		return "validation failed: " + e.Result.Message
	}
	return fmt.Sprintf("validation failed (%s): %s", e.Result.ErrorType, e.Result.Message)
}

// validateCount accepts only strictly positive amounts.
func validateCount(v int64) ValidationResult {
	if v <= 0 {
		return validationFailure(ErrorTypeInvalidValue, "added negative or zero value %d", v)
	}
	return ValidationResult{}
}

// saturatingAdd returns min(current+delta, limit). The result is never below current.
func saturatingAdd(current, delta, limit int64) int64 {
	if delta <= 0 {
		return current
	}
	if current >= limit || delta > limit-current {
		if current > limit {
			return current
		}
		return limit
	}
	return current + delta
}

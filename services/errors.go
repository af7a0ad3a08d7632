package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Error kinds. Every *ServiceError unwraps to exactly one of these, so
// callers branch with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOrderTerminal       = errors.New("order is in a terminal state")
	ErrInvalidCancellation = errors.New("order cannot be cancelled")
	ErrDeleteNotAllowed    = errors.New("order cannot be deleted")
	ErrDuplicateFeedback   = errors.New("feedback already exists")
	ErrOrderNotEligible    = errors.New("order not eligible for feedback")
	ErrForbidden           = errors.New("forbidden")
	ErrIdempotencyConflict = errors.New("idempotency key in use")
	ErrConflict            = errors.New("conflict")
	ErrUpstream            = errors.New("upstream failure")
)

// Error codes returned to API clients
const (
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeFeedbackNotFound    = "FEEDBACK_NOT_FOUND"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeInvalidQuantity     = "INVALID_QUANTITY"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeOrderTerminal       = "ORDER_TERMINAL"
	CodeInvalidCancellation = "INVALID_CANCELLATION"
	CodeDeleteNotAllowed    = "DELETE_NOT_ALLOWED"
	CodeDuplicateFeedback   = "DUPLICATE_FEEDBACK"
	CodeOrderNotEligible    = "ORDER_NOT_ELIGIBLE"
	CodeForbidden           = "FORBIDDEN"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeUserExists          = "USER_EXISTS"
	CodeEmailExists         = "EMAIL_EXISTS"
	CodeAuth0Error          = "AUTH0_ERROR"
)

// ServiceError is a business error with a stable code for API clients
type ServiceError struct {
	Kind    error
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Kind
}

func newError(kind error, code, format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode returns the API code of err, or "" when err is not a *ServiceError
func ErrorCode(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// isUniqueViolation detects duplicate-key errors. TranslateError covers both
// drivers, the string check catches databases opened without it.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "duplicate") ||
		strings.Contains(errMsg, "unique constraint") ||
		strings.Contains(errMsg, "unique")
}

// Caller is the resolved identity behind a request
type Caller struct {
	UserID uint
	Role   string
}

// IsStaff reports whether the caller operates the fulfillment pipeline
func (c Caller) IsStaff() bool {
	return c.Role == "staff"
}

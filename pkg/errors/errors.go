package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Common error constructors

// BadRequest creates a 400 error
func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    "BAD_REQUEST",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

// NotFound creates a 404 error
func NotFound(message string, err error) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: message,
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

// Conflict creates a 409 error
func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     err,
	}
}

// UnprocessableEntity creates a 422 error
func UnprocessableEntity(message string, err error) *AppError {
	return &AppError{
		Code:    "UNPROCESSABLE",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     err,
	}
}

// Internal creates a 500 error
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// ServiceUnavailable creates a 503 error
func ServiceUnavailable(message string, err error) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     err,
	}
}

// Domain-specific errors.
//
// The dispatch engine distinguishes four failure classes: no-candidate is a
// valid business outcome and never carries an error at all; reservation
// conflicts are retried internally and never surfaced; invalid transitions
// are caller precondition violations (4xx); infrastructure failures are the
// only 5xx class, kept distinct so callers can tell "nobody available" from
// "system degraded".

var (
	ErrDriverNotFound = NotFound("Driver not found", nil)
	ErrTripNotFound   = NotFound("Trip not found", nil)

	ErrInvalidTransition  = UnprocessableEntity("Invalid trip status transition", nil)
	ErrInvalidVehicleType = BadRequest("Invalid vehicle type", nil)
	ErrInvalidWeights     = BadRequest("Invalid scoring weights", nil)
	ErrInvalidCoordinates = BadRequest("Invalid coordinates", nil)

	ErrDispatchInProgress = Conflict("Dispatch already in progress for this trip", nil)
	ErrDispatchCancelled  = Conflict("Dispatch was cancelled", nil)
	ErrFraudRejected      = &AppError{
		Code:    "FRAUD_REJECTED",
		Message: "Trip request rejected by fraud screening",
		Status:  http.StatusForbidden,
	}

	ErrDispatchInfrastructure = ServiceUnavailable("Dispatch infrastructure degraded", nil)
)

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError attempts to convert an error to AppError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

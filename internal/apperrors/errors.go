// Package apperrors defines the structured error taxonomy shared by every
// HTTP handler, worker job, and service method in the core.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError into one of the stable categories the
// HTTP boundary maps onto a status code and a machine-readable code.
type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeUnsupportedMedia    ErrorType = "unsupported_media"
	ErrorTypePayloadTooLarge     ErrorType = "payload_too_large"
	ErrorTypeUnauthenticated     ErrorType = "unauthenticated"
	ErrorTypeAccessDenied        ErrorType = "access_denied"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeConflictUnique      ErrorType = "conflict_unique"
	ErrorTypeConflictState       ErrorType = "conflict_state"
	ErrorTypePolicyRefusal       ErrorType = "policy_refusal"
	ErrorTypeUpstreamTimeout     ErrorType = "upstream_timeout"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
	ErrorTypeUpstreamError       ErrorType = "upstream_error"
	ErrorTypeInternal            ErrorType = "internal"
)

// Code returns the stable machine-readable enum value for the RFC 7807
// `code` field (spec §7).
func (t ErrorType) Code() string {
	switch t {
	case ErrorTypeValidation:
		return "BAD_REQUEST"
	case ErrorTypeUnsupportedMedia:
		return "UNSUPPORTED_MEDIA"
	case ErrorTypePayloadTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case ErrorTypeUnauthenticated:
		return "UNAUTHENTICATED"
	case ErrorTypeAccessDenied:
		return "ACCESS_DENIED"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeConflictUnique:
		return "CONFLICT_UNIQUE"
	case ErrorTypeConflictState:
		return "CONFLICT_STATE"
	case ErrorTypePolicyRefusal:
		return "POLICY_REFUSAL"
	case ErrorTypeUpstreamTimeout:
		return "UPSTREAM_TIMEOUT"
	case ErrorTypeUpstreamUnavailable:
		return "UPSTREAM_UNAVAILABLE"
	case ErrorTypeUpstreamError:
		return "UPSTREAM_ERROR"
	default:
		return "INTERNAL"
	}
}

func defaultStatusCode(t ErrorType) int {
	switch t {
	case ErrorTypeValidation, ErrorTypeConflictState:
		return http.StatusBadRequest
	case ErrorTypeUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case ErrorTypePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorTypeUnauthenticated:
		return http.StatusUnauthorized
	case ErrorTypeAccessDenied:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflictUnique:
		return http.StatusConflict
	case ErrorTypePolicyRefusal:
		return http.StatusUnprocessableEntity
	case ErrorTypeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeUpstreamError, ErrorTypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the structured error carried from the core to the HTTP
// boundary (or logged directly from the worker).
type AppError struct {
	Type       ErrorType
	Message    string
	Details    string
	Cause      error
	StatusCode int
}

// New creates an AppError of the given type with its default status code.
func New(t ErrorType, message string) *AppError {
	return &AppError{Type: t, Message: message, StatusCode: defaultStatusCode(t)}
}

// Newf is New with fmt.Sprintf-style formatting of the message.
func Newf(t ErrorType, format string, args ...interface{}) *AppError {
	return New(t, fmt.Sprintf(format, args...))
}

// Wrap attaches an underlying cause to a new AppError.
func Wrap(cause error, t ErrorType, message string) *AppError {
	err := New(t, message)
	err.Cause = cause
	return err
}

// Wrapf is Wrap with fmt.Sprintf-style formatting of the message.
func Wrapf(cause error, t ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails sets Details in place and returns the same error for chaining.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf is WithDetails with fmt.Sprintf-style formatting.
func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// GetType returns the ErrorType of err, or ErrorTypeInternal if err is not
// an *AppError.
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the HTTP status code that should be reported for
// err, defaulting to 500 for errors that are not an *AppError.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ErrorMessages holds the canned, PII-free strings SafeErrorMessage returns
// for error types whose real message might leak internal details.
var ErrorMessages = struct {
	ResourceNotFound       string
	AuthenticationFailed   string
	AccessDenied           string
	OperationTimeout       string
	RateLimitExceeded      string
	ConcurrentModification string
	UpstreamUnavailable    string
	PolicyRefusal          string
}{
	ResourceNotFound:       "The requested resource was not found",
	AuthenticationFailed:   "Authentication failed",
	AccessDenied:           "You do not have access to this resource",
	OperationTimeout:       "The operation timed out",
	RateLimitExceeded:      "Rate limit exceeded, please retry later",
	ConcurrentModification: "The resource was modified concurrently, please retry",
	UpstreamUnavailable:    "An upstream dependency is temporarily unavailable",
	PolicyRefusal:          "This request was refused by policy",
}

// SafeErrorMessage returns a message safe to show to an end user: the
// caller-authored message for validation and policy-refusal errors (those
// are already safe by construction), and a canned message for everything
// else so internals never leak through the detail field (spec §7).
func SafeErrorMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "An unexpected error occurred"
	}

	switch appErr.Type {
	case ErrorTypeValidation:
		return appErr.Message
	case ErrorTypePolicyRefusal:
		return appErr.Message
	case ErrorTypeNotFound:
		return ErrorMessages.ResourceNotFound
	case ErrorTypeUnauthenticated:
		return ErrorMessages.AuthenticationFailed
	case ErrorTypeAccessDenied:
		return ErrorMessages.AccessDenied
	case ErrorTypeUpstreamTimeout:
		return ErrorMessages.OperationTimeout
	case ErrorTypeConflictUnique, ErrorTypeConflictState:
		return ErrorMessages.ConcurrentModification
	case ErrorTypeUpstreamUnavailable:
		return ErrorMessages.UpstreamUnavailable
	default:
		return "An internal error occurred"
	}
}

// LogFields returns a structured map suitable for passing to a logger's
// field builder, carrying the error type and status code so log queries can
// filter and aggregate by either.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{"error": err.Error()}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fields
	}

	fields["error_type"] = string(appErr.Type)
	fields["status_code"] = appErr.StatusCode
	if appErr.Details != "" {
		fields["error_details"] = appErr.Details
	}
	if appErr.Cause != nil {
		fields["underlying_error"] = appErr.Cause.Error()
	}
	return fields
}

// Chain joins a list of errors (ignoring nils) into a single error whose
// message concatenates each one with " -> ". It returns nil if every error
// in errs is nil, and returns the single non-nil error unwrapped if exactly
// one is present.
func Chain(errs ...error) error {
	var present []error
	for _, e := range errs {
		if e != nil {
			present = append(present, e)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	}

	msg := present[0].Error()
	for _, e := range present[1:] {
		msg += " -> " + e.Error()
	}
	return errors.New(msg)
}

// Predefined constructors mirroring common failure shapes.

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, resource+" not found")
}

func NewAccessDeniedError(message string) *AppError {
	return New(ErrorTypeAccessDenied, message)
}

func NewConflictError(message string) *AppError {
	return New(ErrorTypeConflictUnique, message)
}

func NewConflictStateError(message string) *AppError {
	return New(ErrorTypeConflictState, message)
}

func NewPolicyRefusalError(message string) *AppError {
	return New(ErrorTypePolicyRefusal, message)
}

func NewTimeoutError(operation string) *AppError {
	return New(ErrorTypeUpstreamTimeout, "operation timed out: "+operation)
}

func NewInternalError(cause error) *AppError {
	return Wrap(cause, ErrorTypeInternal, "an internal error occurred")
}

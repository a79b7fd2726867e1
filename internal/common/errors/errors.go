// Package errors provides the structured error taxonomy shared by the session
// tracker, its HTTP surface and its workflow workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodePrecondition       ErrorCode = "PRECONDITION_FAILED"
	ErrCodeConfiguration      ErrorCode = "CONFIGURATION_INVALID"
	ErrCodeStoreProbeFailed   ErrorCode = "STORE_PROBE_FAILED"
	ErrCodeStoreDestroyFailed ErrorCode = "STORE_DESTROY_FAILED"
	ErrCodePersistenceFailed  ErrorCode = "PERSISTENCE_FAILED"
	ErrCodePrincipalNotFound  ErrorCode = "PRINCIPAL_NOT_FOUND"
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeAuthentication     ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeExternalService    ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is reports whether target is a StandardError with the same code, which lets
// callers match against the sentinels below with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Sentinels for errors.Is matching. Only Code is compared.
var (
	ErrPrecondition      = &StandardError{Code: ErrCodePrecondition}
	ErrConfiguration     = &StandardError{Code: ErrCodeConfiguration}
	ErrStoreProbe        = &StandardError{Code: ErrCodeStoreProbeFailed}
	ErrStoreDestroy      = &StandardError{Code: ErrCodeStoreDestroyFailed}
	ErrPersistence       = &StandardError{Code: ErrCodePersistenceFailed}
	ErrPrincipalNotFound = &StandardError{Code: ErrCodePrincipalNotFound}
	ErrValidation        = &StandardError{Code: ErrCodeValidationFailed}
	ErrAuthentication    = &StandardError{Code: ErrCodeAuthentication}
	ErrExternalService   = &StandardError{Code: ErrCodeExternalService}
)

// ==========================
// 2. Error Constructors
// ==========================

// NewPreconditionError reports a capability the request context failed to provide.
func NewPreconditionError(capability, message string) *StandardError {
	return &StandardError{
		Code:      ErrCodePrecondition,
		Message:   message,
		Details:   fmt.Sprintf("capability: %s", capability),
		Retryable: false,
		Metadata:  map[string]interface{}{"capability": capability},
		Timestamp: time.Now().UTC(),
	}
}

// NewConfigurationError reports an invalid construction-time option.
func NewConfigurationError(field, message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfiguration,
		Message:   message,
		Details:   fmt.Sprintf("field: %s", field),
		Retryable: false,
		Metadata:  map[string]interface{}{"field": field},
		Timestamp: time.Now().UTC(),
	}
}

func NewStoreProbeError(sessionID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreProbeFailed,
		Message:   "Session store liveness check failed",
		Details:   fmt.Sprintf("sessionId: %s, error: %s", sessionID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewStoreDestroyError(sessionID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreDestroyFailed,
		Message:   "Session store destroy failed",
		Details:   fmt.Sprintf("sessionId: %s, error: %s", sessionID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewPersistenceError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePersistenceFailed,
		Message:   "Failed to persist principal",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewPrincipalNotFoundError(principalID string) *StandardError {
	return &StandardError{
		Code:      ErrCodePrincipalNotFound,
		Message:   "Principal not found",
		Details:   fmt.Sprintf("principalId: %s", principalID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthentication,
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalService,
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Classification
// ==========================

// GetRetryCount returns how many times a workflow engine should retry a job
// that failed with code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodePersistenceFailed,
		ErrCodeExternalService:
		return 3
	case ErrCodeStoreProbeFailed,
		ErrCodeStoreDestroyFailed:
		return 2
	default:
		return 0
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "STORE"):
		return "SESSION_STORE"
	case strings.Contains(codeStr, "PERSISTENCE") || strings.Contains(codeStr, "PRINCIPAL"):
		return "DATABASE"
	case strings.Contains(codeStr, "PRECONDITION") || strings.Contains(codeStr, "CONFIGURATION"):
		return "SETUP"
	case strings.Contains(codeStr, "AUTHENTICATION"):
		return "AUTH"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// Normalize converts any error into a StandardError, preserving existing ones.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

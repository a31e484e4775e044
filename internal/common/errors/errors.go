// Package errors provides standardized error handling for the question-answering pipeline
// and its BPMN workflow integration.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Pipeline stage failures
const (
	ErrCodeSchemaUnavailable     ErrorCode = "SCHEMA_UNAVAILABLE"
	ErrCodeCompletionUnavailable ErrorCode = "COMPLETION_UNAVAILABLE"
	ErrCodeExtractionFailed      ErrorCode = "EXTRACTION_FAILED"
	ErrCodeExecutionFailed       ErrorCode = "EXECUTION_FAILED"
	ErrCodeInterpretationFailed  ErrorCode = "INTERPRETATION_FAILED"
)

// Request and infrastructure failures
const (
	ErrCodeInvalidInput             ErrorCode = "INVALID_INPUT"
	ErrCodeBackendNotConfigured     ErrorCode = "BACKEND_NOT_CONFIGURED"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeExternalService          ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                  ErrorCode = "TIMEOUT_ERROR"
	ErrCodeResourceNotFound         ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
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
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Human renders the error for end users: message plus details when present.
func (e *StandardError) Human() string {
	if e.Details == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Details)
}

// WithMetadata attaches a metadata entry and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewSchemaUnavailableError reports that the store could not enumerate its entities.
func NewSchemaUnavailableError(err error) *StandardError {
	return newError(ErrCodeSchemaUnavailable, "Schema snapshot unavailable", err, true)
}

// NewCompletionUnavailableError reports a network or service failure of the completion service.
func NewCompletionUnavailableError(err error) *StandardError {
	return newError(ErrCodeCompletionUnavailable, "Completion service unavailable", err, true)
}

// NewExtractionFailedError reports that no executable artifact was found in a completion.
func NewExtractionFailedError(err error) *StandardError {
	return newError(ErrCodeExtractionFailed, "Could not extract an executable query from the completion", err, false)
}

// NewExecutionFailedError wraps the store driver or sandbox message.
func NewExecutionFailedError(message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeExecutionFailed,
		Message:   "Query execution failed",
		Details:   message,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInterpretationFailedError reports that the result could not be narrated.
func NewInterpretationFailedError(err error) *StandardError {
	return newError(ErrCodeInterpretationFailed, "Could not interpret the query result", err, true)
}

func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewBackendNotConfiguredError(backend string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBackendNotConfigured,
		Message:   "Backend is not configured",
		Details:   fmt.Sprintf("backend: %s", backend),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err, true)
}

// NewExternalServiceError creates a retryable error for an external dependency.
func NewExternalServiceError(service string, err error) *StandardError {
	e := newError(ErrCodeExternalService, fmt.Sprintf("External service %s failed", service), err, true)
	return e.WithMetadata("service", service)
}

func NewTimeoutError(service string, err error) *StandardError {
	e := newError(ErrCodeTimeout, fmt.Sprintf("Timeout calling %s", service), err, true)
	return e.WithMetadata("service", service)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResourceNotFound,
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError is used when a panic or unexpected error reaches a boundary.
func NewInternalError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSchemaUnavailable,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeCompletionUnavailable,
		ErrCodeInterpretationFailed,
		ErrCodeTimeout:
		return 2

	default:
		return 0 // business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError unwraps err into a StandardError when one is in the chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SCHEMA") || strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "BACKEND"):
		return "STORE"
	case strings.Contains(codeStr, "COMPLETION") || strings.Contains(codeStr, "INTERPRETATION"):
		return "AI"
	case strings.Contains(codeStr, "EXTRACTION") || strings.Contains(codeStr, "EXECUTION"):
		return "QUERY"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "TIMEOUT") || strings.Contains(codeStr, "EXTERNAL"):
		return "INFRASTRUCTURE"
	default:
		return "OTHER"
	}
}

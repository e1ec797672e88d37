package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of a failure
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeAI         ErrorType = "ai"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"cause,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds a key/value pair that is emitted when the error is logged
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func newAppError(typ ErrorType, code, message string, cause error) *AppError {
	return &AppError{
		Type:    typ,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewValidationError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeValidation, code, message, cause)
}

func NewIOError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeIO, code, message, cause)
}

func NewAIError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeAI, code, message, cause)
}

func NewNetworkError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeNetwork, code, message, cause)
}

func NewConfigError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeConfig, code, message, cause)
}

func NewInternalError(code, message string, cause error) *AppError {
	return newAppError(ErrorTypeInternal, code, message, cause)
}

// MissingInputMessage is shown to the user when a required form field is absent.
const MissingInputMessage = "Missing required inputs: job description URL, LinkedIn profile URL, resume file, Gemini API key, or Serper API key."

// Pipeline failure kinds
func NewMissingInputError(missing []string) *AppError {
	return NewValidationError(ErrCodeMissingInput, MissingInputMessage, nil).
		WithContext("missing_fields", missing)
}

func NewNetworkFailure(message string, cause error) *AppError {
	return NewNetworkError(ErrCodeNetworkFailure, message, cause)
}

func NewMalformedDocumentError(message string, cause error) *AppError {
	return NewValidationError(ErrCodeMalformedDocument, message, cause)
}

func NewOrchestratorFailure(message string, cause error) *AppError {
	return NewAIError(ErrCodeOrchestratorFailure, message, cause)
}

func NewIOFailure(message string, cause error) *AppError {
	return NewIOError(ErrCodeIOFailure, message, cause)
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// HTTPStatus maps an error to the response status the server should send.
func HTTPStatus(err error) int {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case ErrCodeMissingInput, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeMalformedDocument, ErrCodeInvalidFormat:
		return http.StatusUnprocessableEntity
	case ErrCodeNetworkFailure, ErrCodeOrchestratorFailure:
		return http.StatusBadGateway
	case ErrCodeAITimeout, ErrCodeNetworkTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	}
	switch appErr.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNetwork, ErrorTypeAI:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Common error codes
const (
	ErrCodeMissingInput        = "MISSING_INPUT"
	ErrCodeNetworkFailure      = "NETWORK_FAILURE"
	ErrCodeMalformedDocument   = "MALFORMED_DOCUMENT"
	ErrCodeOrchestratorFailure = "ORCHESTRATOR_FAILURE"
	ErrCodeIOFailure           = "IO_FAILURE"

	ErrCodeFileNotFound    = "FILE_NOT_FOUND"
	ErrCodeFileNotReadable = "FILE_NOT_READABLE"
	ErrCodeInvalidFormat   = "INVALID_FORMAT"
	ErrCodeAIServiceFailed = "AI_SERVICE_FAILED"
	ErrCodeAITimeout       = "AI_TIMEOUT"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeMissingAPIKey   = "MISSING_API_KEY"
	ErrCodeNetworkTimeout  = "NETWORK_TIMEOUT"
	ErrCodeInvalidConfig   = "INVALID_CONFIG"
	ErrCodeNotifyFailed    = "NOTIFY_FAILED"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeTooLarge        = "REQUEST_TOO_LARGE"
)

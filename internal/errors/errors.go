package errors

import (
	"errors"
	"fmt"
)

// DocChatError is the structured error type for docchat.
// It carries enough context to log it, map it to an HTTP status and show a hint to the user.
type DocChatError struct {
	// Code is the unique error code (e.g., "ERR_404_MESSAGE_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *DocChatError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocChatError) Unwrap() error {
	return e.Cause
}

// Is matches another DocChatError by code, so errors.Is(err, New(code, "", nil)) works.
func (e *DocChatError) Is(target error) bool {
	if t, ok := target.(*DocChatError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *DocChatError) WithDetail(key, value string) *DocChatError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *DocChatError) WithSuggestion(suggestion string) *DocChatError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DocChatError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *DocChatError {
	return &DocChatError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DocChatError from an existing error, reusing its message.
func Wrap(code string, err error) *DocChatError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DocChatError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates a storage-related error.
func IOError(message string, cause error) *DocChatError {
	return New(ErrCodeStorageFailed, message, cause)
}

// NetworkError creates a network-related error. Network errors are retryable.
func NetworkError(message string, cause error) *DocChatError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *DocChatError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *DocChatError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first DocChatError in err's chain.
func As(err error) (*DocChatError, bool) {
	var de *DocChatError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsRetryable reports whether err carries a retryable DocChatError.
func IsRetryable(err error) bool {
	if de, ok := As(err); ok {
		return de.Retryable
	}
	return false
}

// IsFatal reports whether err has fatal severity.
func IsFatal(err error) bool {
	if de, ok := As(err); ok {
		return de.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether any DocChatError in err's chain has the given code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code, or "" when err is not a DocChatError.
func GetCode(err error) string {
	if de, ok := As(err); ok {
		return de.Code
	}
	return ""
}

// GetCategory extracts the category, or "" when err is not a DocChatError.
func GetCategory(err error) Category {
	if de, ok := As(err); ok {
		return de.Category
	}
	return ""
}

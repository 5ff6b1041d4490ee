package causanticerr

import (
	"fmt"
)

// Error is the structured error type surfaced by the retrieval engine.
// It carries enough context for callers (CLI, tests, the search assembler's
// degradation logic) to react to a specific Kind without string matching.
type Error struct {
	// Kind is one of the six kinds callers must distinguish between.
	Kind Kind

	// Code is the specific error code (e.g. "ERR_301_STORE_LOCKED").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried internally.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by kind. This enables
// errors.Is(err, causanticerr.NotFound("", nil)) to work without comparing codes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail adds a key-value detail to the error. Returns the error for
// method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error of the given kind and code.
func New(kind Kind, code string, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Category:  categoryForKind(kind),
		Severity:  severityForKind(kind),
		Cause:     cause,
		Retryable: isRetryableKind(kind),
	}
}

// NotFound creates a KindNotFound error.
func NotFound(message string, cause error) *Error {
	return New(KindNotFound, ErrCodeChunkNotFound, message, cause)
}

// InvalidInput creates a KindInvalidInput error.
func InvalidInput(message string, cause error) *Error {
	return New(KindInvalidInput, ErrCodeInvalidInput, message, cause)
}

// StoreUnavailable creates a KindStoreUnavailable error.
func StoreUnavailable(message string, cause error) *Error {
	return New(KindStoreUnavailable, ErrCodeStoreLocked, message, cause)
}

// DegradedModel creates a KindDegradedModel error.
func DegradedModel(message string, cause error) *Error {
	return New(KindDegradedModel, ErrCodeModelUnavailable, message, cause)
}

// BudgetExhausted creates a KindBudgetExhausted error.
func BudgetExhausted(message string) *Error {
	return New(KindBudgetExhausted, ErrCodeBudgetExhausted, message, nil)
}

// Cancelled creates a KindCancelled error.
func Cancelled(cause error) *Error {
	return New(KindCancelled, ErrCodeCancelled, "operation cancelled", cause)
}

// IsRetryable reports whether err is retryable internally.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*Error); ok {
		return ae.Retryable
	}
	return false
}

// IsFatal reports whether err has fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*Error); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	if ae, ok := err.(*Error); ok {
		return ae.Kind
	}
	return ""
}

// GetCode extracts the error code from an Error. Returns empty string if
// err is not an *Error.
func GetCode(err error) string {
	if ae, ok := err.(*Error); ok {
		return ae.Code
	}
	return ""
}

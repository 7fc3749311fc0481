package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents rejected writes (uniqueness, missing associations)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypePersistence represents graph store failures during persist/update/remove
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeQuery represents query construction and execution errors
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeImport represents record import errors
	ErrorTypeImport ErrorType = "import"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

func (e *BaseError) errorType() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Validation Errors

// ValidationError is returned when a write is rejected by an application-level
// invariant. It is never retried automatically.
type ValidationError struct {
	*BaseError
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Persistence Errors

// PersistenceError wraps a runtime failure raised by the underlying graph store.
type PersistenceError struct {
	*BaseError
	Operation string
}

func NewPersistenceError(operation string, err error) *PersistenceError {
	return &PersistenceError{
		BaseError: NewBaseError(ErrorTypePersistence, fmt.Sprintf("store operation failed: %s", operation), err),
		Operation: operation,
	}
}

// Query Errors

// UnsupportedSortPropertyError is returned when a requested sort property is
// not on the whitelist. Raised before any query executes.
type UnsupportedSortPropertyError struct {
	*BaseError
	Property string
}

func NewUnsupportedSortProperty(property string) *UnsupportedSortPropertyError {
	return &UnsupportedSortPropertyError{
		BaseError: NewBaseError(ErrorTypeQuery, fmt.Sprintf("unsupported sort property: %s", property), nil),
		Property:  property,
	}
}

// QueryFailedError is returned when a graph query fails at the store.
type QueryFailedError struct {
	*BaseError
	Query string
}

func NewQueryFailed(query string, err error) *QueryFailedError {
	return &QueryFailedError{
		BaseError: NewBaseError(ErrorTypeQuery, "query failed", err),
		Query:     query,
	}
}

// Import Errors

// RecordAuthorNotFoundError is returned during privileged import when the
// declared original author does not exist in the store. Fatal for the whole
// import call, since the author is resolved before per-record iteration.
type RecordAuthorNotFoundError struct {
	*BaseError
	Username string
}

func NewRecordAuthorNotFound(username string) *RecordAuthorNotFoundError {
	return &RecordAuthorNotFoundError{
		BaseError: NewBaseError(ErrorTypeImport, fmt.Sprintf("record author not found: %s", username), nil),
		Username:  username,
	}
}

// RecordExistsError marks an imported record whose URI already exists. It is
// accumulated in the import result rather than aborting the batch.
type RecordExistsError struct {
	*BaseError
	URI string
}

func NewRecordExists(uri string) *RecordExistsError {
	return &RecordExistsError{
		BaseError: NewBaseError(ErrorTypeImport, fmt.Sprintf("record already exists: %s", uri), nil),
		URI:       uri,
	}
}

// Helper functions

// typedError is satisfied by BaseError and, through embedding, by every
// concrete error type in this package. The embedded BaseError is not on the
// Unwrap chain, so matching goes through this interface rather than a
// *BaseError assertion.
type typedError interface {
	errorType() ErrorType
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var typed typedError
	if stderrors.As(err, &typed) {
		return typed.errorType() == errType
	}
	return false
}

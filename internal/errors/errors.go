// Package errors provides error code definitions shared across the sync core.
package errors

import "fmt"

// ErrorCode identifies a class of failure that callers can branch on.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrDuplicateKey       ErrorCode = "DUPLICATE_KEY"
	ErrMigration          ErrorCode = "MIGRATION_FAILED"
	ErrUnknownCollection  ErrorCode = "UNKNOWN_COLLECTION"
	ErrUnknownIndex       ErrorCode = "UNKNOWN_INDEX"

	// Sync errors
	ErrRemoteReplayFailed ErrorCode = "REMOTE_REPLAY_FAILED"
	ErrSyncInProgress     ErrorCode = "SYNC_IN_PROGRESS"
	ErrStatsUnavailable   ErrorCode = "STATS_UNAVAILABLE"

	// Conflict resolution errors
	ErrMissingManualResolution ErrorCode = "MISSING_MANUAL_RESOLUTION"
	ErrUnknownStrategy         ErrorCode = "UNKNOWN_STRATEGY"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error carries a specific code, walking wrapped errors.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

package engine

import (
	"errors"
	"fmt"
)

// EditErrorCode categorizes refused edits.
type EditErrorCode string

const (
	// ErrCodeRejectedEdit means the intent violates a catalog or graph
	// constraint. Nothing was applied; retrying the same intent fails again.
	ErrCodeRejectedEdit EditErrorCode = "REJECTED_EDIT"

	// ErrCodeApplyFailed means the graph refused a batch the engine built.
	// This indicates a bug, not a user error.
	ErrCodeApplyFailed EditErrorCode = "APPLY_FAILED"
)

// EditError reports a refused local edit.
type EditError struct {
	Code    EditErrorCode
	Intent  string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *EditError) Error() string {
	if e.Intent != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Intent, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *EditError) Unwrap() error {
	return e.Err
}

// IsRejectedEdit reports whether err is a refused edit.
// Uses errors.As to handle wrapped errors.
func IsRejectedEdit(err error) bool {
	var ee *EditError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeRejectedEdit
	}
	return false
}

func rejected(intent Intent, format string, args ...any) *EditError {
	return &EditError{
		Code:    ErrCodeRejectedEdit,
		Intent:  intent.Op(),
		Message: fmt.Sprintf(format, args...),
	}
}

func rejectedBy(intent Intent, err error) *EditError {
	return &EditError{
		Code:    ErrCodeRejectedEdit,
		Intent:  intent.Op(),
		Message: err.Error(),
		Err:     err,
	}
}

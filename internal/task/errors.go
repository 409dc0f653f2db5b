package task

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrBatchInProgress = errors.New("a batch of this type is already in progress")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrInvalidBatch    = errors.New("invalid batch request")
	// ErrLockLost means another worker took over a task mid-run.
	ErrLockLost = errors.New("task lock lost")
)

// SerializeError converts err into its persisted form. Cause holds the
// innermost wrapped error when err wraps something.
func SerializeError(err error) SerializedError {
	se := SerializedError{Type: fmt.Sprintf("%T", err), Message: err.Error()}
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	if root != err {
		se.Cause = root.Error()
	}
	return se
}

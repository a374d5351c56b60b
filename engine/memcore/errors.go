package memcore

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an absent document or key. Absence is never a
// failure on the read path; callers translate it into a nil result.
var ErrNotFound = errors.New("not found")

// ConnectionError reports a transport or authentication failure against a
// backing store.
type ConnectionError struct {
	Backend string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection error during %s: %v", e.Backend, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func NewConnectionError(backend, op string, err error) *ConnectionError {
	return &ConnectionError{Backend: backend, Op: op, Err: err}
}

// OperationError reports a well-formed request that the backing store
// rejected.
type OperationError struct {
	Backend string
	Op      string
	Err     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s operation %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

func NewOperationError(backend, op string, err error) *OperationError {
	return &OperationError{Backend: backend, Op: op, Err: err}
}

// ValidationError reports malformed input before it reaches a store.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s' with value '%v' %s", e.Field, e.Value, e.Reason)
}

func NewValidationError(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// MemoryOperationError is the tiering-specific failure surfaced to callers
// when the base store rejects an operation.
type MemoryOperationError struct {
	Op     string
	ItemID string
	Err    error
}

func (e *MemoryOperationError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("memory operation %s failed for item %s: %v", e.Op, e.ItemID, e.Err)
	}
	return fmt.Sprintf("memory operation %s failed: %v", e.Op, e.Err)
}

func (e *MemoryOperationError) Unwrap() error {
	return e.Err
}

func NewMemoryOperationError(op, itemID string, err error) *MemoryOperationError {
	return &MemoryOperationError{Op: op, ItemID: itemID, Err: err}
}

// MemoryConnectionError is the tiering-specific variant of a transport
// failure against the base store.
type MemoryConnectionError struct {
	Op  string
	Err error
}

func (e *MemoryConnectionError) Error() string {
	return fmt.Sprintf("memory connection error during %s: %v", e.Op, e.Err)
}

func (e *MemoryConnectionError) Unwrap() error {
	return e.Err
}

func NewMemoryConnectionError(op string, err error) *MemoryConnectionError {
	return &MemoryConnectionError{Op: op, Err: err}
}

// IsConnectionError reports whether err is a transport-level failure.
// Retry policies only apply to these.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	var mce *MemoryConnectionError
	return errors.As(err, &ce) || errors.As(err, &mce)
}

// IsNotFound reports whether err denotes an absent document or key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

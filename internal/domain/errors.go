package domain

import "fmt"

// ValidationError reports bad caller input: a reference to a block that does
// not exist, deleting the last block of a page, indenting a first sibling.
// The operation has made no state change.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// PersistenceError wraps a failed or malformed gateway interaction. The
// engine answers it with the operation-specific rollback/reload policy;
// it is recoverable, never fatal to the process.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InvariantViolation reports internal tree index inconsistency, e.g. a child
// list referencing a block that is not indexed. The only safe response is a
// full page reload, never a partial patch.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "tree index invariant violated: " + e.Detail
}

// Validationf builds a ValidationError in one line.
func Validationf(op, format string, args ...any) *ValidationError {
	return &ValidationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Persistence wraps err as a PersistenceError, or returns nil if err is nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

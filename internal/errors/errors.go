// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages. Script parsing, variable handling and statement execution
// use these kinds to separate precondition violations from execution failures.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// so callers can use errors.Is / errors.As from the standard library on the chain.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// InvalidArgument indicates a precondition violation by the caller.
	InvalidArgument Kind = "invalid_argument"
	// ConnectionRequired indicates a statement that needs a database session but has none.
	ConnectionRequired Kind = "connection_required"
	// ExecutionFailed indicates the database rejected a statement.
	ExecutionFailed Kind = "execution_failed"
	// Cancelled indicates the user or caller cancelled an operation.
	Cancelled Kind = "cancelled"
	// CyclicVariable indicates variable substitution did not converge.
	CyclicVariable Kind = "cyclic_variable"
	// ReadOnly indicates a data-modifying statement in a read-only session.
	ReadOnly Kind = "read_only"
	// IOFailed indicates a file or stream could not be read.
	IOFailed Kind = "io_failed"
	// ConfigInvalid indicates a malformed configuration value.
	ConfigInvalid Kind = "config_invalid"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying error.
func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf formats the message like fmt.Sprintf.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *E in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

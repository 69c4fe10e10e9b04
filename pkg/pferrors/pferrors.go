// Package pferrors defines the error taxonomy shared by every PyFerris
// engine component. Errors are classified by Kind so callers (retry
// executor, circuit breaker, distributed executor) can dispatch on the
// kind rather than on a concrete type.
package pferrors

import (
	"errors"
	"fmt"
)

// Kind names one of the error classes from the error handling design.
type Kind string

const (
	KindTaskFailure         Kind = "task_failure"
	KindTimeout             Kind = "timeout"
	KindShutdown            Kind = "shutdown"
	KindCircuitOpen         Kind = "circuit_open"
	KindAllRetriesExhausted Kind = "all_retries_exhausted"
	KindNoEligibleNode      Kind = "no_eligible_node"
	KindNodeFailed          Kind = "node_failed"
	KindResourceExhausted   Kind = "resource_exhausted"
	KindCheckpointCorrupt   Kind = "checkpoint_corrupt"
)

// Error is the common error type carried across every engine boundary. It
// records the operation that failed alongside the classification, so a
// caller can log or retry without string-matching messages.
type Error struct {
	Kind      Kind
	Operation string
	Attempts  int
	Err       error
}

func (e *Error) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%s: %s (attempts=%d): %v", e.Operation, e.Kind, e.Attempts, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Operation, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind for the named operation.
func New(kind Kind, operation string, err error) *Error {
	return &Error{Kind: kind, Operation: operation, Err: err}
}

// WithAttempts attaches a retry attempt count, used by the retry executor
// when surfacing AllRetriesExhausted.
func (e *Error) WithAttempts(n int) *Error {
	e.Attempts = n
	return e
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var pe *Error
		if !errors.As(err, &pe) {
			return false
		}
		if pe.Kind == kind {
			return true
		}
		err = pe.Err
	}
	return false
}

// Sentinel convenience constructors, mirroring the taxonomy table in the
// error handling design (section 7).
var (
	ErrShutdown            = &Error{Kind: KindShutdown, Operation: "submit"}
	ErrCircuitOpen         = &Error{Kind: KindCircuitOpen, Operation: "execute"}
	ErrNoEligibleNode      = &Error{Kind: KindNoEligibleNode, Operation: "select_node"}
	ErrAllRetriesExhausted = &Error{Kind: KindAllRetriesExhausted, Operation: "retry"}
)

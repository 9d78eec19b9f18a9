package blackboard

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by store operations. Callers branch with
// errors.Is; anything not listed here wraps a TransientError.
var (
	// ErrNotFound means the requested item does not exist or has expired.
	ErrNotFound = errors.New("item not found")

	// ErrInvalidSpace means the space name is not one of the typed spaces.
	ErrInvalidSpace = errors.New("invalid space")

	// ErrInvalidTransition means the requested lifecycle move is not legal
	// from the item's current state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrUnauthorizedActor means the caller does not hold the claim on the
	// task it tried to transition.
	ErrUnauthorizedActor = errors.New("actor does not hold the task")

	// ErrRetriesExhausted means a failed task has no retry budget left and
	// cannot be requeued.
	ErrRetriesExhausted = errors.New("retry budget exhausted")

	// ErrContentionExhausted means repeated claim attempts all lost the
	// race; the caller should back off.
	ErrContentionExhausted = errors.New("claim contention exhausted")
)

// TransientError wraps a storage or driver failure that may succeed on
// retry. The caller decides the retry policy.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// PolicyError reports a well-formed request that a business rule forbids, such as the
// booking window, operating hours or actor permissions.
type PolicyError struct {
	Rule    string
	Message string
}

func (e *PolicyError) Error() string { return e.Message }

// ConflictError reports that the requested time is taken or that the appointment
// changed concurrently. The caller must pick another slot or retry.
type ConflictError struct {
	Message       string
	ConflictingID string
}

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// TransitionError reports a lifecycle move the state machine does not allow.
type TransitionError struct {
	From   model.Status
	To     model.Status
	Action string
}

func (e *TransitionError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("cannot %s a %s appointment", e.Action, e.From)
	}
	return fmt.Sprintf("cannot move appointment from %s to %s", e.From, e.To)
}

// StoreError wraps a persistence failure. Retryable failures (lock or transaction
// timeouts) left no partial write behind.
type StoreError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Kind names the taxonomy bucket of err for logs and API responses.
func Kind(err error) string {
	var (
		ve *ValidationError
		pe *PolicyError
		ce *ConflictError
		ne *NotFoundError
		te *TransitionError
		se *StoreError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &pe):
		return "policy"
	case errors.As(err, &ce):
		return "conflict"
	case errors.As(err, &ne):
		return "not_found"
	case errors.As(err, &te):
		return "invalid_transition"
	case errors.As(err, &se):
		if se.Retryable {
			return "store_retryable"
		}
		return "store"
	default:
		return "internal"
	}
}

// IsRetryable reports whether the same request may succeed if sent again.
func IsRetryable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Retryable
}

func isTyped(err error) bool {
	k := Kind(err)
	return k != "internal" && k != ""
}

// storeErr maps store sentinels onto the taxonomy. Already-typed errors pass through.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTyped(err) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return &NotFoundError{Entity: "appointment"}
	case errors.Is(err, ErrStatusChanged):
		return &ConflictError{Message: "appointment was modified concurrently; reload and retry"}
	case errors.Is(err, ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		return &StoreError{Op: op, Retryable: true, Err: err}
	case errors.Is(err, ErrAtomicUnavailable):
		return &StoreError{Op: op, Err: err}
	default:
		return &StoreError{Op: op, Err: err}
	}
}

func notFoundOr(entity, id, op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return storeErr(op, err)
}

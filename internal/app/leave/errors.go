package leave

import (
	"errors"
	"fmt"

	"github.com/dalemusser/leavedesk/internal/app/store"
	"github.com/dalemusser/leavedesk/internal/domain/models"
)

// Error kinds. Every error returned by this package matches at least one of
// these with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrUnknownLeaveType    = errors.New("unknown or inactive leave type")
	ErrMissingField        = errors.New("missing required field")
	ErrPastDate            = errors.New("start date is in the past")
	ErrDateOrder           = errors.New("end date is before start date")
	ErrInsufficientBalance = errors.New("insufficient leave balance")
	ErrNotEditable         = errors.New("request can no longer be edited")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrForbidden           = errors.New("not allowed")
	ErrNotFound            = errors.New("not found")
	ErrUserInactive        = errors.New("user is inactive")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// FieldError is a validation failure on one input field. It matches both its
// Kind and ErrValidation.
type FieldError struct {
	Kind    error
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Kind)
}

func (e *FieldError) Unwrap() []error {
	if e.Kind == nil || e.Kind == ErrValidation {
		return []error{ErrValidation}
	}
	return []error{e.Kind, ErrValidation}
}

func invalid(kind error, field, msg string) error {
	return &FieldError{Kind: kind, Field: field, Message: msg}
}

// InsufficientBalanceError reports how many days were asked for and how many
// remain.
type InsufficientBalanceError struct {
	LeaveType string
	Available int
	Requested int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: requested %d day(s), %d available",
		e.LeaveType, e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidTransitionError reports an action attempted from the wrong status.
type InvalidTransitionError struct {
	From   models.LeaveStatus
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a request that is %s", e.Action, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// fromStore maps store errors onto this package's kinds. Errors that are
// already leave errors pass through; anything unrecognised is treated as an
// I/O failure.
func fromStore(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isLeaveErr(err):
		return err
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func isLeaveErr(err error) bool {
	for _, k := range []error{
		ErrValidation, ErrUnknownLeaveType, ErrInsufficientBalance, ErrNotEditable,
		ErrInvalidTransition, ErrForbidden, ErrNotFound, ErrUserInactive, ErrStoreUnavailable,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

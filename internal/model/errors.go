package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation marks input rejected before any state was touched.
var ErrValidation = errors.New("validation error")

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrPaymentNotFound      = errors.New("payment not found")
)

var (
	ErrAlreadyRegistered  = errors.New("already registered for this event")
	ErrEventFull          = errors.New("this event is currently full")
	ErrRegistrationClosed = errors.New("registration for this event is closed")
	ErrAlreadyCheckedIn   = errors.New("ticket already checked in")
	ErrInvalidTransition  = errors.New("registration cannot change to the requested state")
	ErrPaymentIncomplete  = errors.New("payment for this registration is not completed")
	ErrEmailTaken         = errors.New("a user with this email already exists")
)

// AlreadyCheckedInError reports who redeemed a ticket and when, so staff at
// the door see more than a bare rejection.
type AlreadyCheckedInError struct {
	TicketID    string
	CheckedInAt time.Time
	CheckedInBy string
}

func (e *AlreadyCheckedInError) Error() string {
	return fmt.Sprintf("%s at %s by %s",
		ErrAlreadyCheckedIn, e.CheckedInAt.Format(time.RFC3339), e.CheckedInBy)
}

// Is lets errors.Is(err, ErrAlreadyCheckedIn) match.
func (e *AlreadyCheckedInError) Is(target error) bool {
	return target == ErrAlreadyCheckedIn
}

// Validationf wraps a formatted message in ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err is an expected absence.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsConflict reports whether err is an expected business-rule rejection.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrEventFull) ||
		errors.Is(err, ErrRegistrationClosed) ||
		errors.Is(err, ErrAlreadyCheckedIn) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrPaymentIncomplete) ||
		errors.Is(err, ErrEmailTaken)
}

// IsExpected reports whether err belongs to the validation, not-found or
// conflict kinds. Anything else is an infrastructure failure.
func IsExpected(err error) bool {
	return errors.Is(err, ErrValidation) || IsNotFound(err) || IsConflict(err)
}

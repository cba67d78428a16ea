package model

import "time"

// RegistrationStatus is the state of a user's claim on an event.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationAttended   RegistrationStatus = "attended"
	RegistrationCancelled  RegistrationStatus = "cancelled"
	RegistrationNoShow     RegistrationStatus = "no_show"
)

// HoldsSeats reports whether registrations in this state count against capacity.
func (s RegistrationStatus) HoldsSeats() bool {
	return s == RegistrationRegistered || s == RegistrationAttended
}

// PaymentStatus tracks settlement of a paid registration.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Registration represents a user's claim on one or more seats of an event.
type Registration struct {
	ID            string             `json:"id"`
	EventID       string             `json:"event_id"`
	UserID        string             `json:"user_id"`
	Status        RegistrationStatus `json:"status"`
	TicketCount   int                `json:"ticket_count"`
	PaymentStatus *PaymentStatus     `json:"payment_status,omitempty"`
	AmountPaid    *Money             `json:"amount_paid,omitempty"`
	RegisteredAt  time.Time          `json:"registered_at"`
	CancelledAt   *time.Time         `json:"cancelled_at,omitempty"`
	AttendedAt    *time.Time         `json:"attended_at,omitempty"`
}

// PaymentCompleted reports whether a completed payment is on record.
func (r *Registration) PaymentCompleted() bool {
	return r.PaymentStatus != nil && *r.PaymentStatus == PaymentCompleted
}

// RegisterParams is the validated input of a sign-up.
type RegisterParams struct {
	EventID     string
	UserID      string
	TicketCount int
	Now         time.Time
}

// RegisterOutcome is what the store reports back from a sign-up.
type RegisterOutcome struct {
	Registration *Registration
	Event        *Event
	Reactivated  bool
}

// CancelOutcome is what the store reports back from a cancellation.
type CancelOutcome struct {
	Registration *Registration
	// Changed is false when the registration was already cancelled.
	Changed bool
}

// DeregisterResult reports the two independent halves of an administrative
// cancellation. The seat release always commits; the refund is best effort.
type DeregisterResult struct {
	Registration    *Registration `json:"registration"`
	RefundProcessed bool          `json:"refund_processed"`
	RefundError     string        `json:"refund_error,omitempty"`
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	// TicketCount defaults to 1 when omitted. An explicit value must be
	// positive.
	UserID      string `json:"user_id" validate:"required,uuid"`
	TicketCount *int   `json:"ticket_count" validate:"omitempty,min=1"`
}

// CancelRequest identifies the user cancelling their own registration.
type CancelRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// DeregisterRequest is the payload of an administrative cancellation.
type DeregisterRequest struct {
	ProcessRefund bool `json:"process_refund"`
}

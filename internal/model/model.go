// Package model defines the core domain types for the event lifecycle:
// events, registrations, tickets, payments and the users who own them.
package model

import (
	"fmt"
	"time"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventUpcoming  EventStatus = "upcoming"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventDraft, EventUpcoming, EventOngoing, EventCompleted, EventCancelled:
		return true
	}
	return false
}

// Money is an amount in minor currency units (cents) tagged with an ISO 4217 code.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Times returns m multiplied by n, keeping the currency.
func (m Money) Times(n int) Money {
	return Money{Amount: m.Amount * int64(n), Currency: m.Currency}
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}

// Event represents a scheduled occurrence users register for.
//
// SpotsRemaining is a cached, derived counter. It is only authoritative while
// the event row is locked inside a registration transaction.
type Event struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	Description          string      `json:"description"`
	Capacity             *int        `json:"capacity"`
	SpotsRemaining       int         `json:"spots_remaining"`
	IsFree               bool        `json:"is_free"`
	TicketPrice          Money       `json:"ticket_price"`
	RegistrationRequired bool        `json:"registration_required"`
	RegistrationDeadline *time.Time  `json:"registration_deadline,omitempty"`
	StartsAt             *time.Time  `json:"starts_at,omitempty"`
	Status               EventStatus `json:"status"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// Unlimited reports whether the event has no capacity limit.
func (e *Event) Unlimited() bool {
	return e.Capacity == nil
}

// AcceptsRegistrations reports whether the event is in a state that allows
// sign-ups at the given instant.
func (e *Event) AcceptsRegistrations(now time.Time) bool {
	if e.Status != EventUpcoming && e.Status != EventOngoing {
		return false
	}
	if e.RegistrationDeadline != nil && now.After(*e.RegistrationDeadline) {
		return false
	}
	return true
}

// InitialPaymentStatus is the payment state a new or reactivated
// registration starts in: pending for paid events, none for free ones.
func (e *Event) InitialPaymentStatus() *PaymentStatus {
	if e.IsFree {
		return nil
	}
	s := PaymentPending
	return &s
}

// User is the owner of registrations. Only the fields the lifecycle needs
// are modelled.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name                 string      `json:"name" validate:"required,max=200"`
	Description          string      `json:"description" validate:"max=5000"`
	Capacity             *int        `json:"capacity" validate:"omitempty,min=1,max=100000"`
	IsFree               bool        `json:"is_free"`
	TicketPrice          int64       `json:"ticket_price" validate:"min=0"`
	Currency             string      `json:"currency" validate:"omitempty,len=3"`
	RegistrationRequired *bool       `json:"registration_required"`
	RegistrationDeadline *time.Time  `json:"registration_deadline"`
	StartsAt             *time.Time  `json:"starts_at"`
	Status               EventStatus `json:"status"`
}

// UpdateEventStatusRequest moves an event through its lifecycle.
type UpdateEventStatusRequest struct {
	Status EventStatus `json:"status" validate:"required"`
}

// CreateUserRequest is the payload for creating a user.
type CreateUserRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=120"`
	Email       string `json:"email" validate:"required,email"`
}

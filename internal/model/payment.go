package model

import "time"

// PaymentTransaction is the local record of a gateway payment.
type PaymentTransaction struct {
	ID             string        `json:"id"`
	RegistrationID string        `json:"registration_id"`
	ExternalID     string        `json:"external_id"`
	Amount         Money         `json:"amount"`
	Status         PaymentStatus `json:"status"`
	RefundID       *string       `json:"refund_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// PaymentIntent is the gateway's answer to a createPayment call.
type PaymentIntent struct {
	ExternalID  string `json:"external_id"`
	CheckoutURL string `json:"checkout_url"`
	Amount      Money  `json:"amount"`
}

// PaymentWebhook is the payload the gateway posts when a payment settles.
type PaymentWebhook struct {
	ExternalID     string `json:"external_id" validate:"required"`
	RegistrationID string `json:"registration_id" validate:"required,uuid"`
	Amount         int64  `json:"amount" validate:"gt=0"`
	Currency       string `json:"currency" validate:"required,len=3"`
}

// CapacityDrift is one event whose cached spots counter disagrees with the
// sum of its active registrations.
type CapacityDrift struct {
	EventID        string `json:"event_id"`
	Capacity       int    `json:"capacity"`
	SpotsRemaining int    `json:"spots_remaining"`
	HeldSeats      int    `json:"held_seats"`
}

// Expected returns the spots counter derived from active registrations.
func (d CapacityDrift) Expected() int {
	return d.Capacity - d.HeldSeats
}

package model

import "time"

// Ticket is one individually scannable unit of a registration.
// Once CheckedIn is true the ticket never changes again.
type Ticket struct {
	ID             string     `json:"id"`
	RegistrationID string     `json:"registration_id"`
	TicketNumber   int        `json:"ticket_number"`
	QRCode         string     `json:"qr_code"`
	CheckedIn      bool       `json:"checked_in"`
	CheckedInAt    *time.Time `json:"checked_in_at,omitempty"`
	CheckedInBy    *string    `json:"checked_in_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TicketDetails is a ticket joined with its owning registration, event and user.
type TicketDetails struct {
	Ticket       Ticket       `json:"ticket"`
	Registration Registration `json:"registration"`
	Event        Event        `json:"event"`
	AttendeeName string       `json:"attendee_name"`
}

// CheckInResult is returned to the scanning operator on success.
type CheckInResult struct {
	Ticket       Ticket `json:"ticket"`
	AttendeeName string `json:"attendee_name"`
	TicketNumber int    `json:"ticket_number"`
}

// CheckInStats summarises check-in progress for one registration.
type CheckInStats struct {
	TotalTickets   int `json:"total_tickets"`
	CheckedInCount int `json:"checked_in_count"`
	PendingCount   int `json:"pending_count"`
}

// IssueTicketsRequest is the payload for minting tickets.
type IssueTicketsRequest struct {
	EventID     string `json:"event_id" validate:"required,uuid"`
	TicketCount int    `json:"ticket_count" validate:"required,min=1"`
}

// CheckInRequest carries a scanned or typed QR token.
type CheckInRequest struct {
	QRCode string `json:"qr_code" validate:"required"`
}

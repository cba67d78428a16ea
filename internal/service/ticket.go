package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/qrtoken"
	"github.com/google/uuid"
)

// QRImageSize is the edge length, in pixels, of rendered ticket codes.
const QRImageSize = 320

// TicketService mints and looks up tickets.
type TicketService struct {
	base
	tickets  TicketStore
	notifier Notifier
}

// NewTicketService constructs a TicketService.
func NewTicketService(tickets TicketStore, notifier Notifier, timeout time.Duration, log *slog.Logger) *TicketService {
	return &TicketService{base: newBase(timeout, log), tickets: tickets, notifier: notifier}
}

// IssueTickets returns the tickets of a registration, minting them on the
// first call. Later calls return the same set unchanged.
func (s *TicketService) IssueTickets(ctx context.Context, registrationID, eventID string, ticketCount int) ([]model.Ticket, error) {
	if err := validateID("registration id", registrationID); err != nil {
		return nil, err
	}
	if err := validateID("event_id", eventID); err != nil {
		return nil, err
	}
	if ticketCount < 1 {
		return nil, model.Validationf("ticket_count must be a positive integer")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		minted bool
		userID string
	)
	tickets, err := s.tickets.Issue(ctx, registrationID, func(reg *model.Registration, e *model.Event) ([]model.Ticket, error) {
		if err := issuable(reg, e, eventID, ticketCount); err != nil {
			return nil, err
		}
		now := s.now().UTC()
		out := make([]model.Ticket, ticketCount)
		for i := range out {
			n := i + 1
			token, err := qrtoken.New(e.ID, reg.ID, n)
			if err != nil {
				return nil, fmt.Errorf("ticket %d token: %w", n, err)
			}
			out[i] = model.Ticket{
				ID:             uuid.NewString(),
				RegistrationID: reg.ID,
				TicketNumber:   n,
				QRCode:         token,
				CreatedAt:      now,
			}
		}
		minted = true
		userID = reg.UserID
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	if minted {
		s.log.InfoContext(ctx, "tickets issued",
			slog.String("registration_id", registrationID),
			slog.Int("count", len(tickets)),
		)
		s.notify(ctx, s.notifier, model.Notification{
			Kind:           model.NotifyTicketsIssued,
			UserID:         userID,
			EventID:        eventID,
			RegistrationID: registrationID,
			Message:        fmt.Sprintf("Your %d ticket(s) are ready.", len(tickets)),
		})
	}
	return tickets, nil
}

// issuable decides, against the locked registration, whether a fresh ticket
// set may be minted.
func issuable(reg *model.Registration, e *model.Event, eventID string, ticketCount int) error {
	if reg.EventID != eventID {
		return model.Validationf("registration does not belong to event %s", eventID)
	}
	if ticketCount != reg.TicketCount {
		return model.Validationf("ticket_count %d does not match the registration's %d", ticketCount, reg.TicketCount)
	}
	if !reg.Status.HoldsSeats() {
		return model.ErrInvalidTransition
	}
	if !e.IsFree && !reg.PaymentCompleted() {
		return model.ErrPaymentIncomplete
	}
	return nil
}

// GetTicketsForRegistration returns a registration's tickets ordered by number.
func (s *TicketService) GetTicketsForRegistration(ctx context.Context, registrationID string) ([]model.Ticket, error) {
	if err := validateID("registration id", registrationID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.tickets.ListByRegistration(ctx, registrationID)
}

// GetTicketByToken resolves a scanned or typed token to its ticket, joined
// with registration, event and attendee.
func (s *TicketService) GetTicketByToken(ctx context.Context, qrCode string) (*model.TicketDetails, error) {
	token := qrtoken.Normalize(qrCode)
	if token == "" {
		return nil, model.Validationf("qr_code is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.tickets.GetByToken(ctx, token)
}

// TicketPNG renders an issued ticket's token as a PNG image. Unknown tokens
// are not rendered.
func (s *TicketService) TicketPNG(ctx context.Context, qrCode string) ([]byte, error) {
	d, err := s.GetTicketByToken(ctx, qrCode)
	if err != nil {
		return nil, err
	}
	img, err := qrtoken.PNG(d.Ticket.QRCode, QRImageSize)
	if err != nil {
		return nil, fmt.Errorf("render ticket %s: %w", d.Ticket.ID, err)
	}
	return img, nil
}

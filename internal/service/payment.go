package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/google/uuid"
)

// PaymentService drives paid registrations through the external gateway.
type PaymentService struct {
	base
	events        EventStore
	registrations RegistrationStore
	payments      PaymentStore
	gateway       Gateway
	tickets       *TicketService
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(
	events EventStore,
	registrations RegistrationStore,
	payments PaymentStore,
	gateway Gateway,
	tickets *TicketService,
	timeout time.Duration,
	log *slog.Logger,
) *PaymentService {
	return &PaymentService{
		base:          newBase(timeout, log),
		events:        events,
		registrations: registrations,
		payments:      payments,
		gateway:       gateway,
		tickets:       tickets,
	}
}

// StartPayment opens a gateway payment for the full price of a registration
// and records it as pending.
func (s *PaymentService) StartPayment(ctx context.Context, registrationID string) (*model.PaymentIntent, error) {
	if err := validateID("registration id", registrationID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	event, err := s.events.GetByID(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	if event.IsFree {
		return nil, model.Validationf("event %s is free", event.ID)
	}
	if reg.Status != model.RegistrationRegistered || reg.PaymentCompleted() {
		return nil, model.ErrInvalidTransition
	}

	amount := event.TicketPrice.Times(reg.TicketCount)
	intent, err := s.gateway.CreatePayment(ctx, reg.ID, amount)
	if err != nil {
		s.log.ErrorContext(ctx, "create payment",
			slog.String("registration_id", reg.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	now := s.now().UTC()
	err = s.payments.RecordPending(ctx, &model.PaymentTransaction{
		ID:             uuid.NewString(),
		RegistrationID: reg.ID,
		ExternalID:     intent.ExternalID,
		Amount:         amount,
		Status:         model.PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "payment started",
		slog.String("registration_id", reg.ID),
		slog.String("external_id", intent.ExternalID),
		slog.String("amount", amount.String()),
	)
	return intent, nil
}

// CompletePayment handles the gateway webhook. Redelivery of the same
// webhook yields the same tickets.
func (s *PaymentService) CompletePayment(ctx context.Context, wh model.PaymentWebhook) ([]model.Ticket, error) {
	if strings.TrimSpace(wh.ExternalID) == "" {
		return nil, model.Validationf("external_id is required")
	}
	if err := validateID("registration_id", wh.RegistrationID); err != nil {
		return nil, err
	}
	if wh.Amount <= 0 {
		return nil, model.Validationf("amount must be positive")
	}
	amount := model.Money{Amount: wh.Amount, Currency: strings.ToUpper(wh.Currency)}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.payments.Complete(ctx, wh.ExternalID, wh.RegistrationID, amount, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "payment completed",
		slog.String("registration_id", p.RegistrationID),
		slog.String("external_id", p.ExternalID),
	)

	reg, err := s.registrations.GetByID(ctx, p.RegistrationID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.tickets.IssueTickets(ctx, reg.ID, reg.EventID, reg.TicketCount)
	if errors.Is(err, model.ErrInvalidTransition) {
		s.log.WarnContext(ctx, "payment completed for an inactive registration",
			slog.String("registration_id", reg.ID),
			slog.String("status", string(reg.Status)),
		)
		return []model.Ticket{}, nil
	}
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/ledger"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
)

const refundFailedMessage = "refund could not be processed; the registration is cancelled and the refund needs manual follow-up"

// RegistrationService owns the registration state machine.
type RegistrationService struct {
	base
	events        EventStore
	users         UserStore
	registrations RegistrationStore
	payments      PaymentStore
	gateway       Gateway
	notifier      Notifier
	cache         EventCache
	tickets       *TicketService
}

// RegistrationDeps groups the collaborators of a RegistrationService.
type RegistrationDeps struct {
	Events        EventStore
	Users         UserStore
	Registrations RegistrationStore
	Payments      PaymentStore
	Gateway       Gateway
	Notifier      Notifier
	// Cache may be nil.
	Cache EventCache
	// Tickets issues tickets for free events right after sign-up.
	Tickets *TicketService
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(d RegistrationDeps, timeout time.Duration, log *slog.Logger) *RegistrationService {
	return &RegistrationService{
		base:          newBase(timeout, log),
		events:        d.Events,
		users:         d.Users,
		registrations: d.Registrations,
		payments:      d.Payments,
		gateway:       d.Gateway,
		notifier:      d.Notifier,
		cache:         d.Cache,
		tickets:       d.Tickets,
	}
}

// Register signs a user up for an event, reactivating a previously cancelled
// registration when one exists. The deadline, status and capacity guard runs
// against the locked event row, before anything is written.
func (s *RegistrationService) Register(ctx context.Context, eventID string, req model.RegisterRequest) (*model.Registration, error) {
	if err := validateID("event id", eventID); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, model.Validationf("user_id is required")
	}
	if err := validateID("user_id", req.UserID); err != nil {
		return nil, err
	}
	count := 1
	if req.TicketCount != nil {
		if count = *req.TicketCount; count < 1 {
			return nil, model.Validationf("ticket_count must be a positive integer")
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	out, err := s.registrations.Register(ctx, model.RegisterParams{
		EventID:     eventID,
		UserID:      req.UserID,
		TicketCount: count,
		Now:         now,
	}, func(e *model.Event) error {
		if !e.AcceptsRegistrations(now) {
			return model.ErrRegistrationClosed
		}
		if !ledger.HasCapacity(e, count) {
			return model.ErrEventFull
		}
		return nil
	})
	if err != nil {
		if model.IsExpected(err) {
			s.log.InfoContext(ctx, "registration rejected",
				slog.String("event_id", eventID),
				slog.String("user_id", req.UserID),
				slog.String("reason", err.Error()),
			)
		}
		return nil, err
	}

	reg := out.Registration
	s.invalidate(ctx, eventID)
	s.log.InfoContext(ctx, "registered",
		slog.String("registration_id", reg.ID),
		slog.String("event_id", eventID),
		slog.Int("ticket_count", reg.TicketCount),
		slog.Bool("reactivated", out.Reactivated),
		slog.Int("spots_remaining", out.Event.SpotsRemaining),
	)

	s.notify(ctx, s.notifier, model.Notification{
		Kind:           model.NotifyRegistered,
		UserID:         reg.UserID,
		EventID:        eventID,
		RegistrationID: reg.ID,
		Message:        fmt.Sprintf("You are registered for %s with %d ticket(s).", out.Event.Name, reg.TicketCount),
	})

	// A reactivated registration may already be settled by its earlier payment.
	if (out.Event.IsFree || reg.PaymentCompleted()) && s.tickets != nil {
		if _, err := s.tickets.IssueTickets(ctx, reg.ID, eventID, reg.TicketCount); err != nil {
			s.log.ErrorContext(ctx, "issue tickets after registration",
				slog.String("registration_id", reg.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return reg, nil
}

// Cancel releases a registration's seats. Cancelling an already-cancelled
// registration succeeds without changing anything.
func (s *RegistrationService) Cancel(ctx context.Context, registrationID string) (*model.Registration, error) {
	if err := validateID("registration id", registrationID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.cancel(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if out.Changed {
		reg := out.Registration
		s.notify(ctx, s.notifier, model.Notification{
			Kind:           model.NotifyCancelled,
			UserID:         reg.UserID,
			EventID:        reg.EventID,
			RegistrationID: reg.ID,
			Message:        "Your registration has been cancelled.",
		})
	}
	return out.Registration, nil
}

// CancelForUser cancels a registration on behalf of its owner. A registration
// owned by someone else is reported as not found.
func (s *RegistrationService) CancelForUser(ctx context.Context, registrationID, userID string) (*model.Registration, error) {
	if err := validateID("registration id", registrationID); err != nil {
		return nil, err
	}
	if err := validateID("user_id", userID); err != nil {
		return nil, err
	}

	reg, err := s.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.UserID != userID {
		s.log.WarnContext(ctx, "cancel by non-owner rejected",
			slog.String("registration_id", registrationID),
			slog.String("user_id", userID),
		)
		return nil, model.ErrRegistrationNotFound
	}
	return s.Cancel(ctx, registrationID)
}

func (s *RegistrationService) cancel(ctx context.Context, registrationID string) (*model.CancelOutcome, error) {
	out, err := s.registrations.Cancel(ctx, registrationID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if out.Changed {
		s.invalidate(ctx, out.Registration.EventID)
		s.log.InfoContext(ctx, "registration cancelled",
			slog.String("registration_id", registrationID),
			slog.String("event_id", out.Registration.EventID),
			slog.Int("released", out.Registration.TicketCount),
		)
	}
	return out, nil
}

// Deregister is the administrative cancel. The seat release always commits
// first; a refund, when requested and applicable, is attempted afterwards and
// its failure is reported in the result rather than returned as an error.
func (s *RegistrationService) Deregister(ctx context.Context, registrationID string, processRefund bool) (*model.DeregisterResult, error) {
	if err := validateID("registration id", registrationID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.cancel(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	reg := out.Registration
	res := &model.DeregisterResult{Registration: reg}

	if processRefund {
		s.refund(ctx, reg, res)
	}

	msg := "An organiser has cancelled your registration."
	switch {
	case res.RefundProcessed:
		msg += " Your payment has been refunded."
	case res.RefundError != "":
		msg += " Your refund is being processed manually."
	}
	s.notify(ctx, s.notifier, model.Notification{
		Kind:           model.NotifyDeregistered,
		UserID:         reg.UserID,
		EventID:        reg.EventID,
		RegistrationID: reg.ID,
		Message:        msg,
	})
	return res, nil
}

// refund never returns an error: the cancellation it follows has already
// committed and must stand regardless of the outcome.
func (s *RegistrationService) refund(ctx context.Context, reg *model.Registration, res *model.DeregisterResult) {
	log := s.log.With(slog.String("registration_id", reg.ID))

	event, err := s.events.GetByID(ctx, reg.EventID)
	if err != nil {
		log.ErrorContext(ctx, "refund: load event", slog.String("error", err.Error()))
		res.RefundError = refundFailedMessage
		return
	}
	if event.IsFree {
		return
	}

	payment, err := s.payments.CompletedForRegistration(ctx, reg.ID)
	if errors.Is(err, model.ErrPaymentNotFound) {
		return
	}
	if err != nil {
		log.ErrorContext(ctx, "refund: load payment", slog.String("error", err.Error()))
		res.RefundError = refundFailedMessage
		return
	}

	refundID, err := s.gateway.Refund(ctx, payment.ExternalID, payment.Amount)
	if err != nil {
		log.ErrorContext(ctx, "refund failed",
			slog.String("external_id", payment.ExternalID),
			slog.String("error", err.Error()),
		)
		res.RefundError = refundFailedMessage
		return
	}

	// The gateway has refunded; a failure to record that locally does not
	// change what the caller is told.
	if err := s.payments.MarkRefunded(context.WithoutCancel(ctx), payment.ID, refundID, s.now().UTC()); err != nil {
		log.ErrorContext(ctx, "record refund",
			slog.String("refund_id", refundID),
			slog.String("error", err.Error()),
		)
	}
	res.RefundProcessed = true
	log.InfoContext(ctx, "refund processed",
		slog.String("refund_id", refundID),
		slog.String("amount", payment.Amount.String()),
	)
}

// GetRegistration returns a single registration.
func (s *RegistrationService) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	if err := validateID("registration id", id); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.registrations.GetByID(ctx, id)
}

// ListRegistrations returns all registrations for an event.
func (s *RegistrationService) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	if err := validateID("event id", eventID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.registrations.ListByEvent(ctx, eventID)
}

func (s *RegistrationService) invalidate(ctx context.Context, eventID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, eventID)
	}
}

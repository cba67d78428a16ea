package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/qrtoken"
)

// CheckInService records attendance at the door.
type CheckInService struct {
	base
	tickets TicketStore
}

// NewCheckInService constructs a CheckInService.
func NewCheckInService(tickets TicketStore, timeout time.Duration, log *slog.Logger) *CheckInService {
	return &CheckInService{base: newBase(timeout, log), tickets: tickets}
}

// CheckIn redeems a ticket. A ticket succeeds at most once; later scans get a
// *model.AlreadyCheckedInError naming who checked it in and when.
func (s *CheckInService) CheckIn(ctx context.Context, qrCode, operatorID string) (*model.CheckInResult, error) {
	token := qrtoken.Normalize(qrCode)
	if token == "" {
		return nil, model.Validationf("qr_code is required")
	}
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return nil, model.Validationf("operator is required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d, err := s.tickets.CheckIn(ctx, token, operatorID, s.now().UTC())
	if err != nil {
		var dup *model.AlreadyCheckedInError
		if errors.As(err, &dup) {
			s.log.InfoContext(ctx, "duplicate check-in",
				slog.String("ticket_id", dup.TicketID),
				slog.String("operator", operatorID),
				slog.String("checked_in_by", dup.CheckedInBy),
			)
		}
		return nil, err
	}

	s.log.InfoContext(ctx, "checked in",
		slog.String("ticket_id", d.Ticket.ID),
		slog.String("registration_id", d.Registration.ID),
		slog.Int("ticket_number", d.Ticket.TicketNumber),
		slog.String("operator", operatorID),
	)
	return &model.CheckInResult{
		Ticket:       d.Ticket,
		AttendeeName: d.AttendeeName,
		TicketNumber: d.Ticket.TicketNumber,
	}, nil
}

// GetCheckInStats reports check-in progress for a registration.
func (s *CheckInService) GetCheckInStats(ctx context.Context, registrationID string) (*model.CheckInStats, error) {
	if err := validateID("registration id", registrationID); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.tickets.Stats(ctx, registrationID)
}

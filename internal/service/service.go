// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
//
// Every operation runs under a bounded timeout. A timeout surfaces as an
// infrastructure error, never as a business rejection.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/google/uuid"
)

const notifyTimeout = 5 * time.Second

// base carries what every service needs.
type base struct {
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func newBase(timeout time.Duration, log *slog.Logger) base {
	return base{timeout: timeout, now: time.Now, log: log}
}

func (b base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// notify dispatches n without letting a failure reach the caller.
func (b base) notify(ctx context.Context, n Notifier, msg model.Notification) {
	if n == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := n.Notify(ctx, msg); err != nil {
		b.log.WarnContext(ctx, "notification dispatch failed",
			slog.String("kind", string(msg.Kind)),
			slog.String("user_id", msg.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func validateID(field, id string) error {
	if err := uuid.Validate(id); err != nil {
		return model.Validationf("%s must be a UUID", field)
	}
	return nil
}

// EventService orchestrates event-related business operations.
type EventService struct {
	base
	events EventStore
	cache  EventCache
}

// NewEventService constructs an EventService. cache may be nil.
func NewEventService(events EventStore, cache EventCache, timeout time.Duration, log *slog.Logger) *EventService {
	return &EventService{base: newBase(timeout, log), events: events, cache: cache}
}

// CreateEvent validates the request and stores a new event with all of its
// capacity available.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, model.Validationf("event name is required")
	}
	if req.Capacity != nil && *req.Capacity <= 0 {
		return nil, model.Validationf("capacity must be a positive integer")
	}
	if req.Status == "" {
		req.Status = model.EventDraft
	}
	if !req.Status.Valid() {
		return nil, model.Validationf("unknown status %q", req.Status)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.IsFree {
		req.TicketPrice = 0
		if currency == "" {
			currency = "USD"
		}
	} else if req.TicketPrice <= 0 || len(currency) != 3 {
		return nil, model.Validationf("paid events need a positive ticket_price and a 3-letter currency")
	}
	if req.RegistrationDeadline != nil && req.StartsAt != nil && req.RegistrationDeadline.After(*req.StartsAt) {
		return nil, model.Validationf("registration_deadline must not be after starts_at")
	}

	registrationRequired := true
	if req.RegistrationRequired != nil {
		registrationRequired = *req.RegistrationRequired
	}

	now := s.now().UTC()
	e := &model.Event{
		ID:                   uuid.NewString(),
		Name:                 req.Name,
		Description:          strings.TrimSpace(req.Description),
		Capacity:             req.Capacity,
		IsFree:               req.IsFree,
		TicketPrice:          model.Money{Amount: req.TicketPrice, Currency: currency},
		RegistrationRequired: registrationRequired,
		RegistrationDeadline: req.RegistrationDeadline,
		StartsAt:             req.StartsAt,
		Status:               req.Status,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if e.Capacity != nil {
		e.SpotsRemaining = *e.Capacity
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.events.Create(ctx, e); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "event created",
		slog.String("event_id", e.ID),
		slog.String("status", string(e.Status)),
	)
	return e, nil
}

// ListEvents returns all events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.events.List(ctx)
}

// GetEvent returns a single event by ID, from the display cache when possible.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if err := validateID("event id", id); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if s.cache != nil {
		if e, ok := s.cache.Get(ctx, id); ok {
			return e, nil
		}
	}
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, e)
	}
	return e, nil
}

var eventTransitions = map[model.EventStatus][]model.EventStatus{
	model.EventDraft:    {model.EventUpcoming, model.EventOngoing, model.EventCancelled},
	model.EventUpcoming: {model.EventDraft, model.EventOngoing, model.EventCompleted, model.EventCancelled},
	model.EventOngoing:  {model.EventCompleted, model.EventCancelled},
}

func eventTransitionAllowed(from, to model.EventStatus) bool {
	if from == to {
		return true
	}
	for _, s := range eventTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateEventStatus moves an event through its lifecycle. Completed and
// cancelled events are final.
func (s *EventService) UpdateEventStatus(ctx context.Context, id string, status model.EventStatus) (*model.Event, error) {
	if err := validateID("event id", id); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, model.Validationf("unknown status %q", status)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	e, err := s.events.UpdateStatus(ctx, id, status, func(from model.EventStatus) error {
		if !eventTransitionAllowed(from, status) {
			return model.ErrInvalidTransition
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}

	s.log.InfoContext(ctx, "event status changed",
		slog.String("event_id", id),
		slog.String("status", string(status)),
	)
	return e, nil
}

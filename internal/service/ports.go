package service

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
)

// EventStore persists events.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	UpdateStatus(ctx context.Context, id string, status model.EventStatus, allowed func(from model.EventStatus) error) (*model.Event, error)
}

// UserStore persists users.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// RegistrationStore persists registrations together with the capacity
// ledger. Register and Cancel each apply the registration change and the
// capacity delta atomically.
type RegistrationStore interface {
	Register(ctx context.Context, p model.RegisterParams, guard func(*model.Event) error) (*model.RegisterOutcome, error)
	Cancel(ctx context.Context, id string, now time.Time) (*model.CancelOutcome, error)
	GetByID(ctx context.Context, id string) (*model.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
}

// TicketStore persists tickets. Issue calls build only when the registration
// has no tickets yet; CheckIn succeeds at most once per ticket.
type TicketStore interface {
	Issue(ctx context.Context, registrationID string, build func(*model.Registration, *model.Event) ([]model.Ticket, error)) ([]model.Ticket, error)
	ListByRegistration(ctx context.Context, registrationID string) ([]model.Ticket, error)
	GetByToken(ctx context.Context, qrCode string) (*model.TicketDetails, error)
	CheckIn(ctx context.Context, qrCode, operatorID string, now time.Time) (*model.TicketDetails, error)
	Stats(ctx context.Context, registrationID string) (*model.CheckInStats, error)
}

// PaymentStore persists payment transactions.
type PaymentStore interface {
	RecordPending(ctx context.Context, p *model.PaymentTransaction) error
	Complete(ctx context.Context, externalID, registrationID string, amount model.Money, now time.Time) (*model.PaymentTransaction, error)
	CompletedForRegistration(ctx context.Context, registrationID string) (*model.PaymentTransaction, error)
	MarkRefunded(ctx context.Context, paymentID, refundID string, now time.Time) error
}

// Gateway is the external payment provider.
type Gateway interface {
	CreatePayment(ctx context.Context, registrationID string, amount model.Money) (*model.PaymentIntent, error)
	Refund(ctx context.Context, externalID string, amount model.Money) (string, error)
}

// Notifier dispatches best-effort notifications.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// EventCache is a display cache for events. Implementations must tolerate
// being unavailable.
type EventCache interface {
	Get(ctx context.Context, eventID string) (*model.Event, bool)
	Set(ctx context.Context, e *model.Event)
	Invalidate(ctx context.Context, eventID string)
}

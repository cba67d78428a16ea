package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/ledger"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory stand-in for the SQL repositories. A single mutex
// plays the role of the row locks: every Register, Cancel, Issue and CheckIn
// sees a consistent event and applies its writes all at once.
type memStore struct {
	mu            sync.Mutex
	events        map[string]*model.Event
	users         map[string]*model.User
	registrations map[string]*model.Registration
	tickets       map[string][]model.Ticket
	payments      map[string]*model.PaymentTransaction
}

func newMemStore() *memStore {
	return &memStore{
		events:        map[string]*model.Event{},
		users:         map[string]*model.User{},
		registrations: map[string]*model.Registration{},
		tickets:       map[string][]model.Ticket{},
		payments:      map[string]*model.PaymentTransaction{},
	}
}

func (m *memStore) eventStore() EventStore               { return memEvents{m} }
func (m *memStore) userStore() UserStore                 { return memUsers{m} }
func (m *memStore) registrationStore() RegistrationStore { return memRegistrations{m} }
func (m *memStore) ticketStore() TicketStore             { return memTickets{m} }
func (m *memStore) paymentStore() PaymentStore           { return memPayments{m} }

func (m *memStore) spots(eventID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[eventID].SpotsRemaining
}

// heldSeats sums ticket counts of registrations that occupy capacity.
func (m *memStore) heldSeats(eventID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := 0
	for _, r := range m.registrations {
		if r.EventID == eventID && r.Status.HoldsSeats() {
			held += r.TicketCount
		}
	}
	return held
}

// applyDelta mirrors ledger.ApplyDelta. The caller holds mu.
func (m *memStore) applyDelta(e *model.Event, delta int) error {
	if !e.Unlimited() && delta < 0 && e.SpotsRemaining+delta < 0 {
		return model.ErrEventFull
	}
	e.SpotsRemaining, _ = ledger.Next(e, delta)
	return nil
}

type memEvents struct{ m *memStore }

func (s memEvents) Create(_ context.Context, e *model.Event) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cp := *e
	s.m.events[e.ID] = &cp
	return nil
}

func (s memEvents) GetByID(_ context.Context, id string) (*model.Event, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	e, ok := s.m.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (s memEvents) List(_ context.Context) ([]model.Event, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]model.Event, 0, len(s.m.events))
	for _, e := range s.m.events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s memEvents) UpdateStatus(_ context.Context, id string, status model.EventStatus, allowed func(model.EventStatus) error) (*model.Event, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	e, ok := s.m.events[id]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	if err := allowed(e.Status); err != nil {
		return nil, err
	}
	e.Status = status
	cp := *e
	return &cp, nil
}

type memUsers struct{ m *memStore }

func (s memUsers) Create(_ context.Context, u *model.User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.users {
		if existing.Email == u.Email {
			return model.ErrEmailTaken
		}
	}
	cp := *u
	s.m.users[u.ID] = &cp
	return nil
}

func (s memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

type memRegistrations struct{ m *memStore }

func (s memRegistrations) Register(_ context.Context, p model.RegisterParams, guard func(*model.Event) error) (*model.RegisterOutcome, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	e, ok := s.m.events[p.EventID]
	if !ok {
		return nil, model.ErrEventNotFound
	}
	var existing *model.Registration
	for _, r := range s.m.registrations {
		if r.EventID == p.EventID && r.UserID == p.UserID {
			existing = r
		}
	}
	if existing != nil && existing.Status != model.RegistrationCancelled {
		return nil, model.ErrAlreadyRegistered
	}

	snapshot := *e
	if err := guard(&snapshot); err != nil {
		return nil, err
	}
	if err := s.m.applyDelta(e, -p.TicketCount); err != nil {
		return nil, err
	}

	reg := existing
	if reg == nil {
		reg = &model.Registration{ID: uuid.NewString(), EventID: p.EventID, UserID: p.UserID}
		s.m.registrations[reg.ID] = reg
	} else {
		delete(s.m.tickets, reg.ID)
	}
	reg.Status = model.RegistrationRegistered
	reg.TicketCount = p.TicketCount
	reg.PaymentStatus = e.InitialPaymentStatus()
	reg.AmountPaid = nil
	if existing != nil && !e.IsFree {
		due := e.TicketPrice.Times(p.TicketCount)
		for _, pt := range s.m.payments {
			if pt.RegistrationID == reg.ID && pt.Status == model.PaymentCompleted && pt.Amount == due {
				st, paid := model.PaymentCompleted, pt.Amount
				reg.PaymentStatus, reg.AmountPaid = &st, &paid
			}
		}
	}
	reg.RegisteredAt = p.Now
	reg.CancelledAt = nil
	reg.AttendedAt = nil

	rc, ec := *reg, *e
	return &model.RegisterOutcome{Registration: &rc, Event: &ec, Reactivated: existing != nil}, nil
}

func (s memRegistrations) Cancel(_ context.Context, id string, now time.Time) (*model.CancelOutcome, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	reg, ok := s.m.registrations[id]
	if !ok {
		return nil, model.ErrRegistrationNotFound
	}
	switch reg.Status {
	case model.RegistrationCancelled:
		rc := *reg
		return &model.CancelOutcome{Registration: &rc}, nil
	case model.RegistrationRegistered:
	default:
		return nil, model.ErrInvalidTransition
	}

	reg.Status = model.RegistrationCancelled
	reg.CancelledAt = &now
	if err := s.m.applyDelta(s.m.events[reg.EventID], reg.TicketCount); err != nil {
		return nil, err
	}
	rc := *reg
	return &model.CancelOutcome{Registration: &rc, Changed: true}, nil
}

func (s memRegistrations) GetByID(_ context.Context, id string) (*model.Registration, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	reg, ok := s.m.registrations[id]
	if !ok {
		return nil, model.ErrRegistrationNotFound
	}
	rc := *reg
	return &rc, nil
}

func (s memRegistrations) ListByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := []model.Registration{}
	for _, r := range s.m.registrations {
		if r.EventID == eventID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type memTickets struct{ m *memStore }

func (s memTickets) Issue(_ context.Context, registrationID string, build func(*model.Registration, *model.Event) ([]model.Ticket, error)) ([]model.Ticket, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	reg, ok := s.m.registrations[registrationID]
	if !ok {
		return nil, model.ErrRegistrationNotFound
	}
	if existing := s.m.tickets[registrationID]; len(existing) > 0 {
		return append([]model.Ticket(nil), existing...), nil
	}
	rc, ec := *reg, *s.m.events[reg.EventID]
	tickets, err := build(&rc, &ec)
	if err != nil {
		return nil, err
	}
	s.m.tickets[registrationID] = append([]model.Ticket(nil), tickets...)
	return tickets, nil
}

func (s memTickets) ListByRegistration(_ context.Context, registrationID string) ([]model.Ticket, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.registrations[registrationID]; !ok {
		return nil, model.ErrRegistrationNotFound
	}
	return append([]model.Ticket{}, s.m.tickets[registrationID]...), nil
}

// find returns the registration id and index of the ticket with qrCode.
// The caller holds mu.
func (s memTickets) find(qrCode string) (string, int, bool) {
	for regID, ts := range s.m.tickets {
		for i := range ts {
			if ts[i].QRCode == qrCode {
				return regID, i, true
			}
		}
	}
	return "", 0, false
}

func (s memTickets) details(regID string, i int) *model.TicketDetails {
	reg := s.m.registrations[regID]
	return &model.TicketDetails{
		Ticket:       s.m.tickets[regID][i],
		Registration: *reg,
		Event:        *s.m.events[reg.EventID],
		AttendeeName: s.m.users[reg.UserID].DisplayName,
	}
}

func (s memTickets) GetByToken(_ context.Context, qrCode string) (*model.TicketDetails, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	regID, i, ok := s.find(qrCode)
	if !ok {
		return nil, model.ErrTicketNotFound
	}
	return s.details(regID, i), nil
}

func (s memTickets) CheckIn(_ context.Context, qrCode, operatorID string, now time.Time) (*model.TicketDetails, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	regID, i, ok := s.find(qrCode)
	if !ok {
		return nil, model.ErrTicketNotFound
	}
	reg := s.m.registrations[regID]
	if !reg.Status.HoldsSeats() {
		return nil, model.ErrInvalidTransition
	}
	t := &s.m.tickets[regID][i]
	if t.CheckedIn {
		return nil, &model.AlreadyCheckedInError{TicketID: t.ID, CheckedInAt: *t.CheckedInAt, CheckedInBy: *t.CheckedInBy}
	}
	t.CheckedIn = true
	t.CheckedInAt = &now
	t.CheckedInBy = &operatorID
	if reg.Status == model.RegistrationRegistered {
		reg.Status = model.RegistrationAttended
		reg.AttendedAt = &now
	}
	return s.details(regID, i), nil
}

func (s memTickets) Stats(_ context.Context, registrationID string) (*model.CheckInStats, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.registrations[registrationID]; !ok {
		return nil, model.ErrRegistrationNotFound
	}
	var st model.CheckInStats
	for _, t := range s.m.tickets[registrationID] {
		st.TotalTickets++
		if t.CheckedIn {
			st.CheckedInCount++
		}
	}
	st.PendingCount = st.TotalTickets - st.CheckedInCount
	return &st, nil
}

type memPayments struct{ m *memStore }

func (s memPayments) RecordPending(_ context.Context, p *model.PaymentTransaction) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.payments[p.ExternalID]; ok {
		return model.Validationf("duplicate external id %s", p.ExternalID)
	}
	cp := *p
	s.m.payments[p.ExternalID] = &cp
	return nil
}

func (s memPayments) Complete(_ context.Context, externalID, registrationID string, amount model.Money, now time.Time) (*model.PaymentTransaction, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	p, ok := s.m.payments[externalID]
	if !ok {
		return nil, model.ErrPaymentNotFound
	}
	if p.RegistrationID != registrationID || p.Amount != amount {
		return nil, model.Validationf("payment mismatch")
	}
	if p.Status != model.PaymentCompleted {
		p.Status = model.PaymentCompleted
		p.UpdatedAt = now
		reg := s.m.registrations[registrationID]
		st := model.PaymentCompleted
		reg.PaymentStatus = &st
		reg.AmountPaid = &amount
	}
	cp := *p
	return &cp, nil
}

func (s memPayments) CompletedForRegistration(_ context.Context, registrationID string) (*model.PaymentTransaction, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, p := range s.m.payments {
		if p.RegistrationID == registrationID && p.Status == model.PaymentCompleted {
			cp := *p
			return &cp, nil
		}
	}
	return nil, model.ErrPaymentNotFound
}

func (s memPayments) MarkRefunded(_ context.Context, paymentID, refundID string, _ time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, p := range s.m.payments {
		if p.ID == paymentID {
			p.Status = model.PaymentRefunded
			p.RefundID = &refundID
			st := model.PaymentRefunded
			s.m.registrations[p.RegistrationID].PaymentStatus = &st
			return nil
		}
	}
	return model.ErrPaymentNotFound
}

type mockGateway struct{ mock.Mock }

func (g *mockGateway) CreatePayment(ctx context.Context, registrationID string, amount model.Money) (*model.PaymentIntent, error) {
	args := g.Called(ctx, registrationID, amount)
	intent, _ := args.Get(0).(*model.PaymentIntent)
	return intent, args.Error(1)
}

func (g *mockGateway) Refund(ctx context.Context, externalID string, amount model.Money) (string, error) {
	args := g.Called(ctx, externalID, amount)
	return args.String(0), args.Error(1)
}

// recordingNotifier keeps every notification it is handed.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) kinds() []model.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.NotificationKind, len(n.sent))
	for i, msg := range n.sent {
		out[i] = msg.Kind
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness wires every service over one memStore.
type harness struct {
	store         *memStore
	gateway       *mockGateway
	notifier      *recordingNotifier
	events        *EventService
	users         *UserService
	registrations *RegistrationService
	tickets       *TicketService
	checkins      *CheckInService
	payments      *PaymentService
}

func newHarness() *harness {
	m := newMemStore()
	gw := new(mockGateway)
	n := &recordingNotifier{}
	log := discardLogger()
	const timeout = 5 * time.Second

	tickets := NewTicketService(m.ticketStore(), n, timeout, log)
	return &harness{
		store:    m,
		gateway:  gw,
		notifier: n,
		events:   NewEventService(m.eventStore(), nil, timeout, log),
		users:    NewUserService(m.userStore(), timeout, log),
		registrations: NewRegistrationService(RegistrationDeps{
			Events:        m.eventStore(),
			Users:         m.userStore(),
			Registrations: m.registrationStore(),
			Payments:      m.paymentStore(),
			Gateway:       gw,
			Notifier:      n,
			Tickets:       tickets,
		}, timeout, log),
		tickets:  tickets,
		checkins: NewCheckInService(m.ticketStore(), timeout, log),
		payments: NewPaymentService(m.eventStore(), m.registrationStore(), m.paymentStore(), gw, tickets, timeout, log),
	}
}

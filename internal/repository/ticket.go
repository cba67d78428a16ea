package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketRepository handles persistence for tickets.
type TicketRepository struct {
	db *pgxpool.Pool
}

// NewTicketRepository constructs a TicketRepository.
func NewTicketRepository(db *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{db: db}
}

// Issue returns the tickets of a registration, minting them with build the
// first time it is called.
//
// Two deliveries of the same payment webhook may call Issue at the same
// moment. The registration row lock makes the second caller wait and then see
// the first caller's tickets; the unique (registration_id, ticket_number)
// constraint rejects a duplicate batch even if the lock were skipped.
func (r *TicketRepository) Issue(
	ctx context.Context,
	registrationID string,
	build func(*model.Registration, *model.Event) ([]model.Ticket, error),
) ([]model.Ticket, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	row := tx.QueryRow(ctx,
		`SELECT `+registrationColumns+`, `+eventColumns+`
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.id = $1
		 FOR UPDATE OF r`,
		registrationID,
	)
	reg, event, err := scanRegistrationWithEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("lock registration row: %w", err)
	}

	existing, err := listTickets(ctx, tx, registrationID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	tickets, err := build(reg, event)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, len(tickets))
	for i, t := range tickets {
		rows[i] = []any{t.ID, t.RegistrationID, t.TicketNumber, t.QRCode, utc(t.CreatedAt)}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"tickets"},
		[]string{"id", "registration_id", "ticket_number", "qr_code", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return nil, fmt.Errorf("insert tickets: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return tickets, nil
}

// ListByRegistration returns the tickets of a registration ordered by number.
// A registration without tickets yields an empty slice.
func (r *TicketRepository) ListByRegistration(ctx context.Context, registrationID string) ([]model.Ticket, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM registrations WHERE id = $1)`, registrationID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("find registration: %w", err)
	}
	if !exists {
		return nil, model.ErrRegistrationNotFound
	}
	return listTickets(ctx, r.db, registrationID)
}

// GetByToken resolves an exact qr code to the ticket and its owners.
func (r *TicketRepository) GetByToken(ctx context.Context, qrCode string) (*model.TicketDetails, error) {
	return getDetails(ctx, r.db, qrCode)
}

// CheckIn redeems the ticket carrying qrCode exactly once.
//
// The decisive write is a conditional UPDATE (… WHERE NOT checked_in). Two
// simultaneous scans of the same code both reach it, but only one matches a
// row; the other sees zero affected rows and is told who got there first.
func (r *TicketRepository) CheckIn(
	ctx context.Context,
	qrCode, operatorID string,
	now time.Time,
) (*model.TicketDetails, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	// Locking the registration serialises check-in with cancellation.
	var (
		ticketID, regID string
		regStatus       string
	)
	err = tx.QueryRow(ctx,
		`SELECT t.id, r.id, r.status
		 FROM tickets t
		 JOIN registrations r ON r.id = t.registration_id
		 WHERE t.qr_code = $1
		 FOR UPDATE OF r`,
		qrCode,
	).Scan(&ticketID, &regID, &regStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTicketNotFound
		}
		return nil, fmt.Errorf("lock registration row: %w", err)
	}
	if !model.RegistrationStatus(regStatus).HoldsSeats() {
		return nil, model.ErrInvalidTransition
	}

	tag, err := tx.Exec(ctx,
		`UPDATE tickets
		 SET checked_in = TRUE, checked_in_at = $2, checked_in_by = $3
		 WHERE id = $1 AND NOT checked_in`,
		ticketID, utc(now), operatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("check in ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var (
			at time.Time
			by string
		)
		err := tx.QueryRow(ctx,
			`SELECT checked_in_at, checked_in_by FROM tickets WHERE id = $1`, ticketID,
		).Scan(&at, &by)
		if err != nil {
			return nil, fmt.Errorf("read check-in: %w", err)
		}
		return nil, &model.AlreadyCheckedInError{TicketID: ticketID, CheckedInAt: at, CheckedInBy: by}
	}

	_, err = tx.Exec(ctx,
		`UPDATE registrations SET status = 'attended', attended_at = $2
		 WHERE id = $1 AND status = 'registered'`,
		regID, utc(now),
	)
	if err != nil {
		return nil, fmt.Errorf("mark registration attended: %w", err)
	}

	details, err := getDetails(ctx, tx, qrCode)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return details, nil
}

// Stats aggregates check-in progress for one registration.
func (r *TicketRepository) Stats(ctx context.Context, registrationID string) (*model.CheckInStats, error) {
	var s model.CheckInStats
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(t.id)::int,
		        (COUNT(t.id) FILTER (WHERE t.checked_in))::int
		 FROM registrations r
		 LEFT JOIN tickets t ON t.registration_id = r.id
		 WHERE r.id = $1
		 GROUP BY r.id`,
		registrationID,
	).Scan(&s.TotalTickets, &s.CheckedInCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("check-in stats: %w", err)
	}
	s.PendingCount = s.TotalTickets - s.CheckedInCount
	return &s, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func listTickets(ctx context.Context, q querier, registrationID string) ([]model.Ticket, error) {
	rows, err := q.Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets t
		 WHERE t.registration_id = $1
		 ORDER BY t.ticket_number ASC`,
		registrationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	tickets, err := collect(rows, scanTicket)
	if err != nil {
		return nil, fmt.Errorf("scan ticket: %w", err)
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	return tickets, nil
}

func getDetails(ctx context.Context, q querier, qrCode string) (*model.TicketDetails, error) {
	row := q.QueryRow(ctx,
		`SELECT `+ticketColumns+`, `+registrationColumns+`, `+eventColumns+`, u.display_name
		 FROM tickets t
		 JOIN registrations r ON r.id = t.registration_id
		 JOIN events e ON e.id = r.event_id
		 JOIN users u ON u.id = r.user_id
		 WHERE t.qr_code = $1`,
		qrCode,
	)

	var (
		d             model.TicketDetails
		regStatus     string
		paymentStatus *string
		amountPaid    *int64
		currency      *string
		eventStatus   string
	)
	t, r, e := &d.Ticket, &d.Registration, &d.Event
	err := row.Scan(
		&t.ID, &t.RegistrationID, &t.TicketNumber, &t.QRCode, &t.CheckedIn,
		&t.CheckedInAt, &t.CheckedInBy, &t.CreatedAt,
		&r.ID, &r.EventID, &r.UserID, &regStatus, &r.TicketCount,
		&paymentStatus, &amountPaid, &currency,
		&r.RegisteredAt, &r.CancelledAt, &r.AttendedAt,
		&e.ID, &e.Name, &e.Description, &e.Capacity, &e.SpotsRemaining, &e.IsFree,
		&e.TicketPrice.Amount, &e.TicketPrice.Currency, &e.RegistrationRequired,
		&e.RegistrationDeadline, &e.StartsAt, &eventStatus, &e.CreatedAt, &e.UpdatedAt,
		&d.AttendeeName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	r.Status = model.RegistrationStatus(regStatus)
	applyPayment(r, paymentStatus, amountPaid, currency)
	e.Status = model.EventStatus(eventStatus)
	return &d, nil
}

func scanRegistrationWithEvent(row scanner) (*model.Registration, *model.Event, error) {
	var (
		r             model.Registration
		e             model.Event
		regStatus     string
		paymentStatus *string
		amountPaid    *int64
		currency      *string
		eventStatus   string
	)
	err := row.Scan(
		&r.ID, &r.EventID, &r.UserID, &regStatus, &r.TicketCount,
		&paymentStatus, &amountPaid, &currency,
		&r.RegisteredAt, &r.CancelledAt, &r.AttendedAt,
		&e.ID, &e.Name, &e.Description, &e.Capacity, &e.SpotsRemaining, &e.IsFree,
		&e.TicketPrice.Amount, &e.TicketPrice.Currency, &e.RegistrationRequired,
		&e.RegistrationDeadline, &e.StartsAt, &eventStatus, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, nil, err
	}
	r.Status = model.RegistrationStatus(regStatus)
	applyPayment(&r, paymentStatus, amountPaid, currency)
	e.Status = model.EventStatus(eventStatus)
	return &r, &e, nil
}

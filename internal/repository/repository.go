// Package repository implements all database queries for the event lifecycle.
// It uses pgx directly (no ORM) for transparency and performance.
//
// Every entity has exactly one scan function that maps a row onto its model
// type; queries select columns in the order those functions expect.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// isUniqueViolation reports whether err is a unique-constraint failure on the
// named constraint. An empty name matches any unique constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// rollback resolves a transaction that was not committed. It is a no-op after
// a successful Commit.
func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(context.WithoutCancel(ctx))
}

const eventColumns = `e.id, e.name, e.description, e.capacity, e.spots_remaining, e.is_free,
	e.ticket_price, e.currency, e.registration_required, e.registration_deadline,
	e.starts_at, e.status, e.created_at, e.updated_at`

func scanEvent(row scanner) (*model.Event, error) {
	var (
		e      model.Event
		status string
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.Capacity, &e.SpotsRemaining, &e.IsFree,
		&e.TicketPrice.Amount, &e.TicketPrice.Currency, &e.RegistrationRequired,
		&e.RegistrationDeadline, &e.StartsAt, &status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = model.EventStatus(status)
	return &e, nil
}

const registrationColumns = `r.id, r.event_id, r.user_id, r.status, r.ticket_count,
	r.payment_status, r.amount_paid, r.currency, r.registered_at, r.cancelled_at, r.attended_at`

func scanRegistration(row scanner) (*model.Registration, error) {
	var (
		r             model.Registration
		status        string
		paymentStatus *string
		amountPaid    *int64
		currency      *string
	)
	err := row.Scan(
		&r.ID, &r.EventID, &r.UserID, &status, &r.TicketCount,
		&paymentStatus, &amountPaid, &currency,
		&r.RegisteredAt, &r.CancelledAt, &r.AttendedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = model.RegistrationStatus(status)
	applyPayment(&r, paymentStatus, amountPaid, currency)
	return &r, nil
}

func applyPayment(r *model.Registration, status *string, amount *int64, currency *string) {
	if status != nil {
		ps := model.PaymentStatus(*status)
		r.PaymentStatus = &ps
	}
	if amount != nil {
		m := model.Money{Amount: *amount}
		if currency != nil {
			m.Currency = *currency
		}
		r.AmountPaid = &m
	}
}

const ticketColumns = `t.id, t.registration_id, t.ticket_number, t.qr_code, t.checked_in,
	t.checked_in_at, t.checked_in_by, t.created_at`

func scanTicket(row scanner) (*model.Ticket, error) {
	var t model.Ticket
	err := row.Scan(
		&t.ID, &t.RegistrationID, &t.TicketNumber, &t.QRCode, &t.CheckedIn,
		&t.CheckedInAt, &t.CheckedInBy, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const userColumns = `u.id, u.display_name, u.email, u.created_at`

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

const paymentColumns = `p.id, p.registration_id, p.external_id, p.amount, p.currency,
	p.status, p.refund_id, p.created_at, p.updated_at`

func scanPayment(row scanner) (*model.PaymentTransaction, error) {
	var (
		p      model.PaymentTransaction
		status string
	)
	err := row.Scan(
		&p.ID, &p.RegistrationID, &p.ExternalID, &p.Amount.Amount, &p.Amount.Currency,
		&status, &p.RefundID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	return &p, nil
}

func collect[T any](rows pgx.Rows, scan func(scanner) (*T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/ledger"
	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db     *pgxpool.Pool
	ledger *ledger.Ledger
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool, l *ledger.Ledger) *RegistrationRepository {
	return &RegistrationRepository{db: db, ledger: l}
}

// Register creates or reactivates the (event, user) registration and takes
// its seats from the event, all in one transaction.
//
// ─────────────────────────────────────────────────────────────────────────────
// RACE CONDITION EXPLAINED
// ─────────────────────────────────────────────────────────────────────────────
//
// Naive read-then-write approach (BROKEN):
//
//	client A: SELECT spots_remaining FROM events WHERE id = X  → returns 1
//	client B: SELECT spots_remaining FROM events WHERE id = X  → returns 1
//	client A: 1 >= 1, OK → INSERT registration, UPDATE spots_remaining = 0
//	client B: 1 >= 1, OK → INSERT registration, UPDATE spots_remaining = 0
//	Result: two registrations for a one-seat event. OVERSOLD.
//
// A second failure mode: the registration write and the counter write are two
// separate statements, so a crash between them leaves the counter drifted.
//
// SOLUTION: one transaction, a locked event row and a conditional decrement.
//
//	1. SELECT … FOR UPDATE on the event row serialises every sign-up and
//	   cancellation for that event. guard runs against the locked row, so
//	   the deadline, status and capacity it sees cannot change underneath it.
//	2. The registration row is inserted or reactivated.
//	3. ledger.ApplyDelta decrements spots_remaining with an UPDATE that only
//	   matches when the result stays non-negative. Even if the lock were
//	   bypassed, the counter could not go below zero.
//	4. COMMIT. Registration state and the counter become visible together.
//
// The unique (event_id, user_id) constraint backs the duplicate check, so a
// retried request can never create a second registration row.
// ─────────────────────────────────────────────────────────────────────────────
func (r *RegistrationRepository) Register(
	ctx context.Context,
	p model.RegisterParams,
	guard func(*model.Event) error,
) (*model.RegisterOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	// ── Step 1: Lock the event row. ───────────────────────────────────────
	event, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.id = $1 FOR UPDATE`, p.EventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}

	// ── Step 2: Look for an existing registration. ────────────────────────
	existing, err := scanRegistration(tx.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations r
		 WHERE r.event_id = $1 AND r.user_id = $2
		 FOR UPDATE`,
		p.EventID, p.UserID,
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("find registration: %w", err)
	case existing.Status != model.RegistrationCancelled:
		return nil, model.ErrAlreadyRegistered
	}

	// ── Step 3: Business guard against the locked row. ────────────────────
	if err := guard(event); err != nil {
		return nil, err
	}

	// ── Step 4: Insert or reactivate. ─────────────────────────────────────
	var paymentStatus *string
	if ps := event.InitialPaymentStatus(); ps != nil {
		s := string(*ps)
		paymentStatus = &s
	}

	var reg *model.Registration
	if existing == nil {
		reg, err = scanRegistration(tx.QueryRow(ctx,
			`INSERT INTO registrations AS r
			        (id, event_id, user_id, status, ticket_count, payment_status, registered_at)
			 VALUES ($1, $2, $3, 'registered', $4, $5, $6)
			 RETURNING `+registrationColumns,
			uuid.NewString(), p.EventID, p.UserID, p.TicketCount, paymentStatus, utc(p.Now),
		))
		if err != nil {
			if isUniqueViolation(err, "registrations_event_user_key") {
				return nil, model.ErrAlreadyRegistered
			}
			return nil, fmt.Errorf("insert registration: %w", err)
		}
	} else {
		// Tickets of a cancelled registration were never checked in; a fresh
		// set is issued for the new ticket count.
		if _, err := tx.Exec(ctx, `DELETE FROM tickets WHERE registration_id = $1`, existing.ID); err != nil {
			return nil, fmt.Errorf("delete stale tickets: %w", err)
		}
		var paid *model.Money
		if !event.IsFree {
			if paid, err = carriedPayment(ctx, tx, existing.ID, event.TicketPrice.Times(p.TicketCount)); err != nil {
				return nil, err
			}
		}
		var amountPaid *int64
		var currency *string
		if paid != nil {
			s := string(model.PaymentCompleted)
			paymentStatus, amountPaid, currency = &s, &paid.Amount, &paid.Currency
		}
		reg, err = scanRegistration(tx.QueryRow(ctx,
			`UPDATE registrations r
			 SET status = 'registered', ticket_count = $2, payment_status = $3,
			     amount_paid = $5, currency = $6,
			     registered_at = $4, cancelled_at = NULL, attended_at = NULL
			 WHERE r.id = $1
			 RETURNING `+registrationColumns,
			existing.ID, p.TicketCount, paymentStatus, utc(p.Now), amountPaid, currency,
		))
		if err != nil {
			return nil, fmt.Errorf("reactivate registration: %w", err)
		}
	}

	// ── Step 5: Take the seats. ───────────────────────────────────────────
	spots, err := r.ledger.ApplyDelta(ctx, tx, p.EventID, -p.TicketCount)
	if err != nil {
		return nil, err
	}
	event.SpotsRemaining = spots

	// ── Step 6: Commit. ───────────────────────────────────────────────────
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &model.RegisterOutcome{
		Registration: reg,
		Event:        event,
		Reactivated:  existing != nil,
	}, nil
}

// carriedPayment returns the completed, unrefunded payment of a cancelled
// registration when it covers exactly amount, or nil. Such a payment settles
// the reactivated registration.
func carriedPayment(ctx context.Context, tx pgx.Tx, registrationID string, amount model.Money) (*model.Money, error) {
	var m model.Money
	err := tx.QueryRow(ctx,
		`SELECT amount, currency
		 FROM payment_transactions
		 WHERE registration_id = $1 AND status = 'completed'
		   AND amount = $2 AND currency = $3
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		registrationID, amount.Amount, amount.Currency,
	).Scan(&m.Amount, &m.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find carried payment: %w", err)
	}
	return &m, nil
}

// Cancel moves a registration to cancelled and gives its recorded ticket
// count back to the event. Cancelling an already-cancelled registration is a
// no-op reported with Changed=false.
func (r *RegistrationRepository) Cancel(ctx context.Context, id string, now time.Time) (*model.CancelOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	// The event row is locked before the registration row, in the same order
	// Register takes them, so the two never deadlock.
	var eventID string
	err = tx.QueryRow(ctx,
		`SELECT e.id FROM events e
		 JOIN registrations r ON r.event_id = e.id
		 WHERE r.id = $1
		 FOR UPDATE OF e`,
		id,
	).Scan(&eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}

	reg, err := scanRegistration(tx.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations r WHERE r.id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("lock registration row: %w", err)
	}

	switch reg.Status {
	case model.RegistrationCancelled:
		return &model.CancelOutcome{Registration: reg, Changed: false}, nil
	case model.RegistrationRegistered:
	default:
		return nil, model.ErrInvalidTransition
	}

	updated, err := scanRegistration(tx.QueryRow(ctx,
		`UPDATE registrations r
		 SET status = 'cancelled', cancelled_at = $2
		 WHERE r.id = $1
		 RETURNING `+registrationColumns,
		id, utc(now),
	))
	if err != nil {
		return nil, fmt.Errorf("cancel registration: %w", err)
	}

	// The recorded ticket count is released, never a re-read of anything else.
	if _, err := r.ledger.ApplyDelta(ctx, tx, eventID, reg.TicketCount); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &model.CancelOutcome{Registration: updated, Changed: true}, nil
}

// GetByID returns a single registration or model.ErrRegistrationNotFound.
func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations r WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// ListByEvent returns all registrations for a given event.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations r
		 WHERE r.event_id = $1
		 ORDER BY r.registered_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	regs, err := collect(rows, scanRegistration)
	if err != nil {
		return nil, fmt.Errorf("scan registration: %w", err)
	}
	return regs, nil
}

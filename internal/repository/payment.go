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

// PaymentRepository handles persistence for payment transactions.
type PaymentRepository struct {
	db *pgxpool.Pool
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// RecordPending stores a transaction the gateway has just created.
func (r *PaymentRepository) RecordPending(ctx context.Context, p *model.PaymentTransaction) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payment_transactions
		        (id, registration_id, external_id, amount, currency, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 'pending', $6, $6)`,
		p.ID, p.RegistrationID, p.ExternalID, p.Amount.Amount, p.Amount.Currency, utc(p.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "payment_transactions_external_id_key") {
			return model.Validationf("external id %q already recorded", p.ExternalID)
		}
		return fmt.Errorf("insert payment transaction: %w", err)
	}
	return nil
}

// Complete marks the transaction with externalID completed and records the
// payment on its registration. Completing an already-completed transaction
// returns it unchanged, so webhook redelivery is harmless.
func (r *PaymentRepository) Complete(
	ctx context.Context,
	externalID, registrationID string,
	amount model.Money,
	now time.Time,
) (*model.PaymentTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	p, err := scanPayment(tx.QueryRow(ctx,
		`SELECT `+paymentColumns+`
		 FROM payment_transactions p
		 WHERE p.external_id = $1
		 FOR UPDATE`,
		externalID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("lock payment row: %w", err)
	}

	if p.RegistrationID != registrationID {
		return nil, model.Validationf("payment %s does not belong to registration %s", externalID, registrationID)
	}
	if p.Amount != amount {
		return nil, model.Validationf("payment amount %s does not match recorded %s", amount, p.Amount)
	}

	switch p.Status {
	case model.PaymentCompleted:
		return p, nil
	case model.PaymentPending, model.PaymentFailed:
	default:
		return nil, model.ErrInvalidTransition
	}

	p, err = scanPayment(tx.QueryRow(ctx,
		`UPDATE payment_transactions p
		 SET status = 'completed', updated_at = $2
		 WHERE p.id = $1
		 RETURNING `+paymentColumns,
		p.ID, utc(now),
	))
	if err != nil {
		return nil, fmt.Errorf("complete payment: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE registrations
		 SET payment_status = 'completed', amount_paid = $2, currency = $3
		 WHERE id = $1`,
		registrationID, amount.Amount, amount.Currency,
	)
	if err != nil {
		return nil, fmt.Errorf("record registration payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return p, nil
}

// CompletedForRegistration returns the most recent completed transaction of a
// registration or model.ErrPaymentNotFound.
func (r *PaymentRepository) CompletedForRegistration(ctx context.Context, registrationID string) (*model.PaymentTransaction, error) {
	p, err := scanPayment(r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+`
		 FROM payment_transactions p
		 WHERE p.registration_id = $1 AND p.status = 'completed'
		 ORDER BY p.updated_at DESC
		 LIMIT 1`,
		registrationID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("find completed payment: %w", err)
	}
	return p, nil
}

// MarkRefunded records a successful gateway refund on the transaction and its
// registration.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, paymentID, refundID string, now time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	var registrationID string
	err = tx.QueryRow(ctx,
		`UPDATE payment_transactions
		 SET status = 'refunded', refund_id = $2, updated_at = $3
		 WHERE id = $1 AND status = 'completed'
		 RETURNING registration_id`,
		paymentID, refundID, utc(now),
	).Scan(&registrationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrPaymentNotFound
		}
		return fmt.Errorf("mark payment refunded: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE registrations SET payment_status = 'refunded' WHERE id = $1`, registrationID)
	if err != nil {
		return fmt.Errorf("mark registration refunded: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, name, description, capacity, spots_remaining, is_free,
		                     ticket_price, currency, registration_required, registration_deadline,
		                     starts_at, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.Name, e.Description, e.Capacity, e.SpotsRemaining, e.IsFree,
		e.TicketPrice.Amount, e.TicketPrice.Currency, e.RegistrationRequired, e.RegistrationDeadline,
		e.StartsAt, string(e.Status), utc(e.CreatedAt), utc(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// List returns all events ordered by creation time descending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events e
		 ORDER BY e.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events, err := collect(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return events, nil
}

// GetByID returns a single event or model.ErrEventNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// UpdateStatus moves an event to status. allowed is consulted with the
// current status while the row is locked.
func (r *EventRepository) UpdateStatus(
	ctx context.Context,
	id string,
	status model.EventStatus,
	allowed func(from model.EventStatus) error,
) (*model.Event, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM events WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrEventNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	if err := allowed(model.EventStatus(current)); err != nil {
		return nil, err
	}

	e, err := scanEvent(tx.QueryRow(ctx,
		`UPDATE events e SET status = $2, updated_at = now()
		 WHERE e.id = $1
		 RETURNING `+eventColumns,
		id, string(status),
	))
	if err != nil {
		return nil, fmt.Errorf("update event status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return e, nil
}

// CapacityDrift lists capacity-limited events whose spots counter differs from
// capacity minus the seats held by registered and attended registrations.
func (r *EventRepository) CapacityDrift(ctx context.Context) ([]model.CapacityDrift, error) {
	rows, err := r.db.Query(ctx,
		`SELECT e.id, e.capacity, e.spots_remaining, COALESCE(SUM(r.ticket_count), 0)::int AS held
		 FROM events e
		 LEFT JOIN registrations r
		        ON r.event_id = e.id AND r.status IN ('registered', 'attended')
		 WHERE e.capacity IS NOT NULL
		 GROUP BY e.id, e.capacity, e.spots_remaining
		 HAVING e.spots_remaining <> e.capacity - COALESCE(SUM(r.ticket_count), 0)`,
	)
	if err != nil {
		return nil, fmt.Errorf("capacity drift: %w", err)
	}
	defer rows.Close()

	var drifts []model.CapacityDrift
	for rows.Next() {
		var d model.CapacityDrift
		if err := rows.Scan(&d.EventID, &d.Capacity, &d.SpotsRemaining, &d.HeldSeats); err != nil {
			return nil, fmt.Errorf("scan capacity drift: %w", err)
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// ReconcileSpots rewrites the spots counter of one event from its active
// registrations, clamped to [0, capacity], and returns the stored value.
func (r *EventRepository) ReconcileSpots(ctx context.Context, eventID string) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	var capacity *int
	err = tx.QueryRow(ctx, `SELECT capacity FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrEventNotFound
		}
		return 0, fmt.Errorf("lock event row: %w", err)
	}
	if capacity == nil {
		return 0, nil
	}

	var spots int
	err = tx.QueryRow(ctx,
		`UPDATE events
		 SET spots_remaining = GREATEST(capacity - (
		         SELECT COALESCE(SUM(ticket_count), 0)::int
		         FROM registrations
		         WHERE event_id = $1 AND status IN ('registered', 'attended')
		     ), 0),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING spots_remaining`,
		eventID,
	).Scan(&spots)
	if err != nil {
		return 0, fmt.Errorf("reconcile spots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return spots, nil
}

// Package ledger answers "is there room for N more attendees?" and applies
// capacity deltas to an event's spots counter.
//
// The counter is only ever changed by a single conditional UPDATE, executed
// inside the same transaction as the registration state change it accounts
// for. A decrement that would take the counter below zero matches no row, so
// two concurrent sign-ups for the last seat cannot both succeed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
	"github.com/jackc/pgx/v5"
)

// HasCapacity is true if the event is unlimited or has at least units spots left.
func HasCapacity(e *model.Event, units int) bool {
	if e.Unlimited() {
		return true
	}
	return e.SpotsRemaining >= units
}

// Next returns the counter value after applying delta, clamped to
// [0, capacity]. clamped is true when the raw value was out of range, which
// means an earlier update was lost somewhere.
//
// Unlimited events do not maintain the counter.
func Next(e *model.Event, delta int) (next int, clamped bool) {
	if e.Unlimited() {
		return e.SpotsRemaining, false
	}
	raw := e.SpotsRemaining + delta
	next = min(max(raw, 0), *e.Capacity)
	return next, next != raw
}

// Querier is satisfied by pgx.Tx, *pgx.Conn and *pgxpool.Pool.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger applies capacity deltas.
type Ledger struct {
	log *slog.Logger
}

// New constructs a Ledger.
func New(log *slog.Logger) *Ledger {
	return &Ledger{log: log}
}

// applyDeltaSQL is the whole read-decide-write in one statement. The CTE keeps
// the pre-update value so an out-of-range write can be detected and clamped.
const applyDeltaSQL = `
WITH prev AS (
    SELECT id, capacity, spots_remaining
    FROM events
    WHERE id = $1
    FOR UPDATE
)
UPDATE events e
SET spots_remaining = CASE
        WHEN prev.capacity IS NULL THEN prev.spots_remaining
        ELSE LEAST(GREATEST(prev.spots_remaining + $2::int, 0), prev.capacity)
    END,
    updated_at = now()
FROM prev
WHERE e.id = prev.id
  AND ($2::int >= 0 OR prev.capacity IS NULL OR prev.spots_remaining + $2::int >= 0)
RETURNING e.spots_remaining, prev.capacity, prev.spots_remaining + $2::int`

// ApplyDelta adds delta (negative on sign-up, positive on cancellation) to the
// event's spots counter and returns the stored value. A negative delta that
// does not fit returns model.ErrEventFull and writes nothing.
func (l *Ledger) ApplyDelta(ctx context.Context, q Querier, eventID string, delta int) (int, error) {
	var (
		stored   int
		capacity *int
		raw      int
	)
	err := q.QueryRow(ctx, applyDeltaSQL, eventID, delta).Scan(&stored, &capacity, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrEventFull
		}
		return 0, fmt.Errorf("apply capacity delta: %w", err)
	}

	if capacity != nil && stored != raw {
		l.log.WarnContext(ctx, "capacity counter clamped, a previous update was lost",
			slog.String("event_id", eventID),
			slog.Int("delta", delta),
			slog.Int("raw", raw),
			slog.Int("stored", stored),
			slog.Int("capacity", *capacity),
		)
	}
	return stored, nil
}

package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Shivanand-hulikatti/event-lifecycle/internal/model"
)

// DriftStore finds and repairs events whose spots counter disagrees with
// their active registrations.
type DriftStore interface {
	CapacityDrift(ctx context.Context) ([]model.CapacityDrift, error)
	ReconcileSpots(ctx context.Context, eventID string) (int, error)
}

type invalidator interface {
	Invalidate(ctx context.Context, eventID string)
}

// Auditor periodically checks that the sum of net deltas per event matches
// capacity minus the seats held by registered and attended registrations.
type Auditor struct {
	store     DriftStore
	cache     invalidator
	reconcile bool
	log       *slog.Logger
}

// NewAuditor constructs an Auditor. When reconcile is false drift is only
// reported. cache may be nil.
func NewAuditor(store DriftStore, cache invalidator, reconcile bool, log *slog.Logger) *Auditor {
	return &Auditor{store: store, cache: cache, reconcile: reconcile, log: log}
}

// Run performs one audit pass and returns the drifts it found.
func (a *Auditor) Run(ctx context.Context) ([]model.CapacityDrift, error) {
	drifts, err := a.store.CapacityDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("capacity drift: %w", err)
	}

	for _, d := range drifts {
		a.log.WarnContext(ctx, "capacity drift detected",
			slog.String("event_id", d.EventID),
			slog.Int("capacity", d.Capacity),
			slog.Int("spots_remaining", d.SpotsRemaining),
			slog.Int("held_seats", d.HeldSeats),
			slog.Int("expected", d.Expected()),
		)
		if !a.reconcile {
			continue
		}

		spots, err := a.store.ReconcileSpots(ctx, d.EventID)
		if err != nil {
			a.log.ErrorContext(ctx, "capacity reconcile failed",
				slog.String("event_id", d.EventID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if a.cache != nil {
			a.cache.Invalidate(ctx, d.EventID)
		}
		a.log.InfoContext(ctx, "capacity reconciled",
			slog.String("event_id", d.EventID),
			slog.Int("spots_remaining", spots),
		)
	}

	if len(drifts) == 0 {
		a.log.DebugContext(ctx, "capacity audit clean")
	}
	return drifts, nil
}

// Package reconcile contains the orchestration core: per-resource state
// machines that close the gap between desired and observed state one
// side effect at a time, and the scheduler that drives them with retries,
// backoff, and crash recovery.
package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
)

// Outcome is the result of a single reconciliation pass.
type Outcome int

const (
	// OutcomeAdvanced means state changed; re-enqueue immediately.
	OutcomeAdvanced Outcome = iota
	// OutcomeWaiting means no change yet; re-enqueue after the poll interval.
	OutcomeWaiting
	// OutcomeSucceeded means the resource reached a terminal-for-now state.
	OutcomeSucceeded
	// OutcomeFailedRetryable means the attempt failed but should be retried
	// with backoff.
	OutcomeFailedRetryable
	// OutcomeFailedTerminal means reconciliation must stop until a user acts.
	OutcomeFailedTerminal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeWaiting:
		return "waiting"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailedRetryable:
		return "failed-retryable"
	case OutcomeFailedTerminal:
		return "failed-terminal"
	default:
		return "unknown"
	}
}

// Reconciler drives one resource kind. Implementations must be safe to
// invoke concurrently for different resources and idempotent for the same
// resource: observed state is re-checked before every side effect.
type Reconciler interface {
	Kind() models.ResourceKind
	// Reconcile performs at most one externally-visible side effect and
	// reports how scheduling should continue.
	Reconcile(ctx context.Context, resourceID uuid.UUID) (Outcome, error)
	// RecordFailure appends a failed attempt to the resource's event log.
	RecordFailure(ctx context.Context, resourceID uuid.UUID, attempt int, message string) error
	// MarkFailed moves the resource to the failed status with the final error.
	MarkFailed(ctx context.Context, resourceID uuid.UUID, message string) error
	// Pending lists resources that still need reconciliation, used to
	// rebuild the queue after a restart.
	Pending(ctx context.Context) ([]uuid.UUID, error)
}

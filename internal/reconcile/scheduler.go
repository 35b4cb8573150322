package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	"github.com/pressdeck/engine/internal/repository"
	appErr "github.com/pressdeck/engine/pkg/errors"
	"github.com/pressdeck/engine/pkg/logger"
	"go.uber.org/zap"
)

// Enqueuer hands a reconcile trigger to the queue transport. The queue is
// delivery only; the durable task row owns attempts and mutual exclusion.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, delay time.Duration) error
}

// Scheduler decides when each resource gets reconciled next. Every queue
// delivery funnels through Process, which claims the resource's task row
// before invoking the reconciler, so concurrent deliveries for the same
// resource collapse into one active reconciliation.
type Scheduler struct {
	tasks        repository.TaskRepository
	enqueuer     Enqueuer
	policy       Policy
	pollInterval time.Duration
	maxAttempts  int
	reconcilers  map[models.ResourceKind]Reconciler
}

func NewScheduler(tasks repository.TaskRepository, enqueuer Enqueuer, policy Policy, pollInterval time.Duration, maxAttempts int, reconcilers ...Reconciler) *Scheduler {
	byKind := make(map[models.ResourceKind]Reconciler, len(reconcilers))
	for _, r := range reconcilers {
		byKind[r.Kind()] = r
	}
	return &Scheduler{
		tasks:        tasks,
		enqueuer:     enqueuer,
		policy:       policy,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		reconcilers:  byKind,
	}
}

// Enqueue registers a resource for reconciliation. Safe to call repeatedly:
// the task row is created once and extra queue deliveries bounce off the
// claim in Process.
func (s *Scheduler) Enqueue(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, delay time.Duration) error {
	if _, err := s.tasks.Ensure(ctx, kind, resourceID, time.Now().Add(delay)); err != nil {
		return err
	}
	return s.enqueuer.Enqueue(ctx, kind, resourceID, delay)
}

// Process runs one reconciliation pass for a delivered trigger.
func (s *Scheduler) Process(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID) (err error) {
	rec, ok := s.reconcilers[kind]
	if !ok {
		return appErr.New(appErr.CodeInternal, "no reconciler registered").WithMeta("kind", string(kind))
	}

	claimed, err := s.tasks.Claim(ctx, kind, resourceID)
	if err != nil {
		return err
	}
	if !claimed {
		// Duplicate delivery, or the task finished already. Drop it.
		return nil
	}

	// The queue will not redeliver, so a claim abandoned on an error path
	// would wedge the resource until the next worker restart. Hand it back
	// whenever this pass fails with the task still running.
	defer func() {
		if err == nil {
			return
		}
		if uerr := s.tasks.Unclaim(ctx, kind, resourceID); uerr != nil {
			logger.L().Error("unclaim reconcile task",
				zap.String("kind", string(kind)),
				zap.String("resource_id", resourceID.String()),
				zap.Error(uerr))
		}
	}()

	var task models.ReconcileTask
	if err := s.tasks.Get(ctx, kind, resourceID, &task); err != nil {
		return err
	}

	outcome, rerr := rec.Reconcile(ctx, resourceID)

	log := logger.L().With(
		zap.String("kind", string(kind)),
		zap.String("resource_id", resourceID.String()),
		zap.String("outcome", outcome.String()),
		zap.Int("attempts", task.Attempts))

	switch outcome {
	case OutcomeAdvanced:
		// Progress resets the retry budget.
		if err := s.tasks.Release(ctx, kind, resourceID, 0, time.Now(), ""); err != nil {
			return err
		}
		log.Info("reconcile advanced")
		return s.enqueuer.Enqueue(ctx, kind, resourceID, 0)

	case OutcomeWaiting:
		attempts := task.Attempts + 1
		if attempts >= s.maxAttempts {
			return s.terminate(ctx, rec, kind, resourceID, attempts,
				"resource did not become ready within the retry budget")
		}
		if err := s.tasks.Release(ctx, kind, resourceID, attempts, time.Now().Add(s.pollInterval), ""); err != nil {
			return err
		}
		log.Debug("reconcile waiting")
		return s.enqueuer.Enqueue(ctx, kind, resourceID, s.pollInterval)

	case OutcomeSucceeded:
		log.Info("reconcile finished")
		return s.tasks.Remove(ctx, kind, resourceID)

	case OutcomeFailedRetryable:
		attempts := task.Attempts + 1
		msg := errMessage(rerr)
		if attempts >= s.maxAttempts {
			return s.terminate(ctx, rec, kind, resourceID, attempts, msg)
		}
		if err := rec.RecordFailure(ctx, resourceID, attempts, msg); err != nil {
			log.Error("record failure", zap.Error(err))
		}
		delay := s.policy.Delay(attempts)
		if err := s.tasks.Release(ctx, kind, resourceID, attempts, time.Now().Add(delay), msg); err != nil {
			return err
		}
		log.Warn("reconcile failed, retrying",
			zap.Duration("delay", delay), zap.String("error", msg))
		return s.enqueuer.Enqueue(ctx, kind, resourceID, delay)

	case OutcomeFailedTerminal:
		return s.terminate(ctx, rec, kind, resourceID, task.Attempts+1, errMessage(rerr))

	default:
		return appErr.New(appErr.CodeInternal, "unknown reconcile outcome")
	}
}

// terminate records the final failure, marks the resource failed, and drops
// the task so nothing retries until a user intervenes.
func (s *Scheduler) terminate(ctx context.Context, rec Reconciler, kind models.ResourceKind, resourceID uuid.UUID, attempt int, msg string) error {
	if err := rec.RecordFailure(ctx, resourceID, attempt, msg); err != nil {
		logger.L().Error("record terminal failure",
			zap.String("resource_id", resourceID.String()), zap.Error(err))
	}
	if err := rec.MarkFailed(ctx, resourceID, msg); err != nil {
		return err
	}
	logger.L().Error("reconcile failed permanently",
		zap.String("kind", string(kind)),
		zap.String("resource_id", resourceID.String()),
		zap.Int("attempts", attempt),
		zap.String("error", msg))
	return s.tasks.Remove(ctx, kind, resourceID)
}

// Resync rebuilds the queue from persistent state after a restart. Tasks
// orphaned in the running state are reclaimed first, then every non-terminal
// resource is re-enqueued.
func (s *Scheduler) Resync(ctx context.Context) error {
	if err := s.tasks.ResetRunning(ctx); err != nil {
		return err
	}
	for kind, rec := range s.reconcilers {
		ids, err := rec.Pending(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.Enqueue(ctx, kind, id, 0); err != nil {
				return err
			}
		}
		logger.L().Info("resynced pending resources",
			zap.String("kind", string(kind)), zap.Int("count", len(ids)))
	}
	return nil
}

func errMessage(err error) string {
	if err == nil {
		return "reconciliation failed"
	}
	return err.Error()
}

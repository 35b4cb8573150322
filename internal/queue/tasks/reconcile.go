// Package tasks binds the reconciliation scheduler to the asynq transport.
// Asynq only delivers triggers here; attempts, backoff, and mutual exclusion
// live in the scheduler's durable task rows, so tasks are enqueued with
// MaxRetry(0) and duplicate deliveries are harmless.
package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/pressdeck/engine/internal/models"
	"github.com/pressdeck/engine/internal/reconcile"
	appErr "github.com/pressdeck/engine/pkg/errors"
)

const (
	TypeReconcileServer     = "reconcile:server"
	TypeReconcileDeployment = "reconcile:deployment"

	// QueueReconcile is the asynq queue all reconcile triggers go through.
	QueueReconcile = "reconcile"
)

// ReconcilePayload carries the resource a trigger targets.
type ReconcilePayload struct {
	ResourceID uuid.UUID `json:"resource_id"`
}

func taskType(kind models.ResourceKind) (string, error) {
	switch kind {
	case models.KindServer:
		return TypeReconcileServer, nil
	case models.KindDeployment:
		return TypeReconcileDeployment, nil
	default:
		return "", appErr.New(appErr.CodeInternal, "unknown resource kind").WithMeta("kind", string(kind))
	}
}

// AsynqEnqueuer implements reconcile.Enqueuer on top of an asynq client.
type AsynqEnqueuer struct {
	client *asynq.Client
}

func NewAsynqEnqueuer(client *asynq.Client) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client}
}

var _ reconcile.Enqueuer = (*AsynqEnqueuer)(nil)

func (e *AsynqEnqueuer) Enqueue(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, delay time.Duration) error {
	typ, err := taskType(kind)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ReconcilePayload{ResourceID: resourceID})
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "marshal reconcile payload failed")
	}
	opts := []asynq.Option{
		asynq.Queue(QueueReconcile),
		asynq.MaxRetry(0),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	if _, err := e.client.EnqueueContext(ctx, asynq.NewTask(typ, payload), opts...); err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "enqueue reconcile task failed")
	}
	return nil
}

// Handler routes asynq deliveries into the scheduler.
type Handler struct {
	scheduler *reconcile.Scheduler
}

func NewHandler(scheduler *reconcile.Scheduler) *Handler {
	return &Handler{scheduler: scheduler}
}

// Register attaches the reconcile task types to an asynq mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeReconcileServer, h.handle(models.KindServer))
	mux.HandleFunc(TypeReconcileDeployment, h.handle(models.KindDeployment))
}

func (h *Handler) handle(kind models.ResourceKind) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "unmarshal reconcile payload failed")
		}
		return h.scheduler.Process(ctx, kind, payload.ResourceID)
	}
}

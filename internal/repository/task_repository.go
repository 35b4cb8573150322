package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	appErr "github.com/pressdeck/engine/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TaskRepository interface {
	// Ensure creates the task row for a resource if none exists and returns
	// it. An existing row is returned untouched, so repeated enqueues keep a
	// single outstanding task per resource.
	Ensure(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, nextRetryAt time.Time) (*models.ReconcileTask, error)
	Get(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, dest *models.ReconcileTask) error
	// Claim atomically moves the task from scheduled to running. Returns
	// false when the task is already claimed or gone, in which case the
	// caller must not reconcile.
	Claim(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID) (bool, error)
	// Release puts a claimed task back to scheduled with updated bookkeeping.
	Release(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, attempts int, nextRetryAt time.Time, lastError string) error
	// Unclaim returns a claimed task to scheduled without touching its
	// bookkeeping. A no-op when the task is not running, so it is safe to
	// call on any error path after a claim.
	Unclaim(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID) error
	Remove(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID) error
	// ResetRunning returns every claimed task to scheduled. Called once at
	// worker startup so tasks orphaned by a crash become claimable again.
	ResetRunning(ctx context.Context) error
}

type taskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Ensure(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, nextRetryAt time.Time) (*models.ReconcileTask, error) {
	task := models.ReconcileTask{
		ResourceKind: kind,
		ResourceID:   resourceID,
		State:        models.TaskScheduled,
		NextRetryAt:  nextRetryAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "resource_kind"}, {Name: "resource_id"}},
			DoNothing: true,
		}).
		Create(&task).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "ensure reconcile task failed")
	}
	var out models.ReconcileTask
	if err := r.Get(ctx, kind, resourceID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *taskRepository) Get(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, dest *models.ReconcileTask) error {
	err := r.db.WithContext(ctx).
		Where("resource_kind = ? AND resource_id = ?", kind, resourceID).
		First(dest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "reconcile task not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get reconcile task failed")
	}
	return nil
}

func (r *taskRepository) Claim(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ReconcileTask{}).
		Where("resource_kind = ? AND resource_id = ? AND state = ?", kind, resourceID, models.TaskScheduled).
		Update("state", models.TaskRunning)
	if res.Error != nil {
		return false, appErr.Wrap(res.Error, appErr.CodeInternal, "claim reconcile task failed")
	}
	return res.RowsAffected == 1, nil
}

func (r *taskRepository) Release(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, attempts int, nextRetryAt time.Time, lastError string) error {
	res := r.db.WithContext(ctx).Model(&models.ReconcileTask{}).
		Where("resource_kind = ? AND resource_id = ? AND state = ?", kind, resourceID, models.TaskRunning).
		Updates(map[string]any{
			"state":         models.TaskScheduled,
			"attempts":      attempts,
			"next_retry_at": nextRetryAt,
			"last_error":    lastError,
		})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "release reconcile task failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeConflict, "reconcile task not in running state")
	}
	return nil
}

func (r *taskRepository) Unclaim(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID) error {
	err := r.db.WithContext(ctx).Model(&models.ReconcileTask{}).
		Where("resource_kind = ? AND resource_id = ? AND state = ?", kind, resourceID, models.TaskRunning).
		Update("state", models.TaskScheduled).Error
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "unclaim reconcile task failed")
	}
	return nil
}

func (r *taskRepository) ResetRunning(ctx context.Context) error {
	err := r.db.WithContext(ctx).Model(&models.ReconcileTask{}).
		Where("state = ?", models.TaskRunning).
		Update("state", models.TaskScheduled).Error
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "reset running tasks failed")
	}
	return nil
}

func (r *taskRepository) Remove(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Where("resource_kind = ? AND resource_id = ?", kind, resourceID).
		Delete(&models.ReconcileTask{}).Error
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "remove reconcile task failed")
	}
	return nil
}

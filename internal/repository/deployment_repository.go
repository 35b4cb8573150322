package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	appErr "github.com/pressdeck/engine/pkg/errors"
	"gorm.io/gorm"
)

type DeploymentRepository interface {
	BaseRepository[models.Deployment]
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Deployment, error)
	ListByServer(ctx context.Context, serverID uuid.UUID) ([]models.Deployment, error)
	ListNonTerminal(ctx context.Context) ([]models.Deployment, error)
	TransitionStatus(ctx context.Context, deploymentID uuid.UUID, from, to models.Status) error
	SetDesiredState(ctx context.Context, deploymentID uuid.UUID, desired models.DesiredState) error
	SetExternalID(ctx context.Context, deploymentID uuid.UUID, externalID string) error
	SetLastError(ctx context.Context, deploymentID uuid.UUID, msg string) error
	AppendEvent(ctx context.Context, deploymentID uuid.UUID, event models.Event) error
}

type deploymentRepository struct {
	BaseRepository[models.Deployment]
	db *gorm.DB
}

func NewDeploymentRepository(db *gorm.DB) DeploymentRepository {
	return &deploymentRepository{BaseRepository: NewBaseRepository[models.Deployment](db), db: db}
}

func (r *deploymentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Deployment, error) {
	var out []models.Deployment
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list deployments failed")
	}
	return out, nil
}

func (r *deploymentRepository) ListByServer(ctx context.Context, serverID uuid.UUID) ([]models.Deployment, error) {
	var out []models.Deployment
	if err := r.db.WithContext(ctx).Where("server_id = ?", serverID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list deployments by server failed")
	}
	return out, nil
}

func (r *deploymentRepository) ListNonTerminal(ctx context.Context) ([]models.Deployment, error) {
	var out []models.Deployment
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []models.Status{models.StatusReady, models.StatusFailed, models.StatusDeleted}).
		Or("status IN ? AND desired_state = ?", []models.Status{models.StatusReady, models.StatusFailed}, models.DesiredDeleted).
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list non-terminal deployments failed")
	}
	return out, nil
}

func (r *deploymentRepository) TransitionStatus(ctx context.Context, deploymentID uuid.UUID, from, to models.Status) error {
	if !models.CanTransition(from, to) {
		return appErr.New(appErr.CodeInternal, "illegal deployment status transition").
			WithMeta("from", string(from)).WithMeta("to", string(to))
	}
	res := r.db.WithContext(ctx).Model(&models.Deployment{}).
		Where("id = ? AND status = ?", deploymentID, from).
		Update("status", to)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update deployment status failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeConflict, "deployment status changed concurrently")
	}
	return nil
}

func (r *deploymentRepository) SetDesiredState(ctx context.Context, deploymentID uuid.UUID, desired models.DesiredState) error {
	return r.updateColumn(ctx, deploymentID, "desired_state", desired, "update deployment desired state failed")
}

func (r *deploymentRepository) SetExternalID(ctx context.Context, deploymentID uuid.UUID, externalID string) error {
	return r.updateColumn(ctx, deploymentID, "external_id", externalID, "update deployment external id failed")
}

func (r *deploymentRepository) SetLastError(ctx context.Context, deploymentID uuid.UUID, msg string) error {
	return r.updateColumn(ctx, deploymentID, "last_error", msg, "update deployment last error failed")
}

func (r *deploymentRepository) updateColumn(ctx context.Context, deploymentID uuid.UUID, column string, value any, failMsg string) error {
	res := r.db.WithContext(ctx).Model(&models.Deployment{}).Where("id = ?", deploymentID).Update(column, value)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, failMsg)
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "deployment not found")
	}
	return nil
}

func (r *deploymentRepository) AppendEvent(ctx context.Context, deploymentID uuid.UUID, event models.Event) error {
	var d models.Deployment
	if err := r.GetByID(ctx, deploymentID, &d); err != nil {
		return err
	}
	events, err := appendEvent(d.Events, event)
	if err != nil {
		return err
	}
	return r.updateColumn(ctx, deploymentID, "events", events, "append deployment event failed")
}

package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	"github.com/pressdeck/engine/internal/repository"
	appErr "github.com/pressdeck/engine/pkg/errors"
	"github.com/pressdeck/engine/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type DeploymentService interface {
	CreateDeployment(ctx context.Context, userID uuid.UUID, input *CreateDeploymentInput) (*models.Deployment, error)
	GetDeployment(ctx context.Context, deploymentID, userID uuid.UUID) (*models.Deployment, error)
	ListDeployments(ctx context.Context, userID uuid.UUID, serverID uuid.UUID) ([]models.Deployment, error)
	GetDeploymentEvents(ctx context.Context, deploymentID, userID uuid.UUID) ([]models.Event, error)

	DeleteDeployment(ctx context.Context, deploymentID, userID uuid.UUID) error
	RetryDeployment(ctx context.Context, deploymentID, userID uuid.UUID) (*models.Deployment, error)
}

type CreateDeploymentInput struct {
	ServerID   uuid.UUID
	SiteName   string
	Domain     string
	AdminEmail string
	Config     map[string]string
}

type deploymentService struct {
	deployRepo repository.DeploymentRepository
	serverRepo repository.ServerRepository
	credRepo   repository.CredentialRepository
	enqueuer   ReconcileEnqueuer
}

func NewDeploymentService(deployRepo repository.DeploymentRepository, serverRepo repository.ServerRepository, credRepo repository.CredentialRepository, enqueuer ReconcileEnqueuer) DeploymentService {
	return &deploymentService{deployRepo: deployRepo, serverRepo: serverRepo, credRepo: credRepo, enqueuer: enqueuer}
}

var _ DeploymentService = (*deploymentService)(nil)

func (s *deploymentService) CreateDeployment(ctx context.Context, userID uuid.UUID, input *CreateDeploymentInput) (*models.Deployment, error) {
	if input.SiteName == "" || input.Domain == "" || input.AdminEmail == "" {
		return nil, appErr.New(appErr.CodeInvalid, "site_name, domain and admin_email are required")
	}

	var srv models.Server
	if err := s.serverRepo.GetByID(ctx, input.ServerID, &srv); err != nil {
		return nil, err
	}
	if srv.UserID != userID {
		return nil, appErr.New(appErr.CodeUnauthorized, "user does not own server")
	}
	if srv.DesiredState == models.DesiredDeleted || srv.Status == models.StatusFailed {
		return nil, appErr.New(appErr.CodePrecondition, "server cannot host new deployments")
	}

	var cred models.Credential
	if err := s.credRepo.GetByUserProvider(ctx, userID, models.ProviderDokploy, &cred); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodePrecondition, "no dokploy credential stored")
		}
		return nil, err
	}
	if !cred.Valid {
		return nil, appErr.New(appErr.CodePrecondition, "dokploy credential is marked invalid")
	}

	d := &models.Deployment{
		UserID:       userID,
		ServerID:     input.ServerID,
		SiteName:     input.SiteName,
		Domain:       input.Domain,
		AdminEmail:   input.AdminEmail,
		DesiredState: models.DesiredReady,
		Status:       models.StatusCreated,
	}
	if len(input.Config) > 0 {
		b, err := json.Marshal(input.Config)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal deployment config failed")
		}
		d.Config = datatypes.JSON(b)
	}

	if err := s.deployRepo.Create(ctx, d); err != nil {
		return nil, err
	}

	if err := s.enqueuer.Enqueue(ctx, models.KindDeployment, d.ID, 0); err != nil {
		logger.L().Error("enqueue deployment reconcile failed",
			zap.String("deployment_id", d.ID.String()), zap.Error(err))
		return nil, err
	}

	logger.L().Info("deployment created",
		zap.String("deployment_id", d.ID.String()),
		zap.String("server_id", input.ServerID.String()),
		zap.String("user_id", userID.String()))
	return d, nil
}

func (s *deploymentService) GetDeployment(ctx context.Context, deploymentID, userID uuid.UUID) (*models.Deployment, error) {
	var d models.Deployment
	if err := s.deployRepo.GetByID(ctx, deploymentID, &d); err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, appErr.New(appErr.CodeUnauthorized, "user does not own deployment")
	}
	return &d, nil
}

func (s *deploymentService) ListDeployments(ctx context.Context, userID uuid.UUID, serverID uuid.UUID) ([]models.Deployment, error) {
	if serverID != uuid.Nil {
		var srv models.Server
		if err := s.serverRepo.GetByID(ctx, serverID, &srv); err != nil {
			return nil, err
		}
		if srv.UserID != userID {
			return nil, appErr.New(appErr.CodeUnauthorized, "user does not own server")
		}
		return s.deployRepo.ListByServer(ctx, serverID)
	}
	return s.deployRepo.ListByUser(ctx, userID)
}

func (s *deploymentService) GetDeploymentEvents(ctx context.Context, deploymentID, userID uuid.UUID) ([]models.Event, error) {
	d, err := s.GetDeployment(ctx, deploymentID, userID)
	if err != nil {
		return nil, err
	}
	var events []models.Event
	if len(d.Events) > 0 {
		if err := json.Unmarshal(d.Events, &events); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "decode deployment events failed")
		}
	}
	return events, nil
}

func (s *deploymentService) DeleteDeployment(ctx context.Context, deploymentID, userID uuid.UUID) error {
	d, err := s.GetDeployment(ctx, deploymentID, userID)
	if err != nil {
		return err
	}
	if d.DesiredState == models.DesiredDeleted {
		// Deletion already requested; re-arm the trigger in case the
		// original delivery was lost.
		return s.enqueuer.Enqueue(ctx, models.KindDeployment, deploymentID, 0)
	}
	if err := s.deployRepo.SetDesiredState(ctx, deploymentID, models.DesiredDeleted); err != nil {
		return err
	}
	logger.L().Info("deployment deletion requested",
		zap.String("deployment_id", deploymentID.String()), zap.String("user_id", userID.String()))
	return s.enqueuer.Enqueue(ctx, models.KindDeployment, deploymentID, 0)
}

func (s *deploymentService) RetryDeployment(ctx context.Context, deploymentID, userID uuid.UUID) (*models.Deployment, error) {
	d, err := s.GetDeployment(ctx, deploymentID, userID)
	if err != nil {
		return nil, err
	}
	if d.Status != models.StatusFailed {
		return nil, appErr.New(appErr.CodeConflict, "only failed deployments can be retried")
	}
	if err := s.deployRepo.TransitionStatus(ctx, deploymentID, models.StatusFailed, models.StatusProvisioning); err != nil {
		return nil, err
	}
	if err := s.deployRepo.SetLastError(ctx, deploymentID, ""); err != nil {
		return nil, err
	}
	d.Status = models.StatusProvisioning
	d.LastError = ""
	logger.L().Info("deployment retry requested",
		zap.String("deployment_id", deploymentID.String()), zap.String("user_id", userID.String()))
	return d, s.enqueuer.Enqueue(ctx, models.KindDeployment, deploymentID, 0)
}

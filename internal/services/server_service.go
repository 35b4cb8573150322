package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	"github.com/pressdeck/engine/internal/repository"
	appErr "github.com/pressdeck/engine/pkg/errors"
	"github.com/pressdeck/engine/pkg/logger"
	"go.uber.org/zap"
)

// ReconcileEnqueuer triggers reconciliation for a resource. Satisfied by
// the reconcile scheduler.
type ReconcileEnqueuer interface {
	Enqueue(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, delay time.Duration) error
}

type ServerService interface {
	CreateServer(ctx context.Context, userID uuid.UUID, input *CreateServerInput) (*models.Server, error)
	GetServer(ctx context.Context, serverID, userID uuid.UUID) (*models.Server, error)
	ListServers(ctx context.Context, userID uuid.UUID) ([]models.Server, error)
	GetServerEvents(ctx context.Context, serverID, userID uuid.UUID) ([]models.Event, error)

	// DeleteServer flips the desired state to deleted; teardown happens
	// asynchronously.
	DeleteServer(ctx context.Context, serverID, userID uuid.UUID) error
	// RetryServer re-arms reconciliation for a failed server.
	RetryServer(ctx context.Context, serverID, userID uuid.UUID) (*models.Server, error)
}

type CreateServerInput struct {
	Name       string
	ServerType string
	Image      string
	Location   string
}

type serverService struct {
	serverRepo repository.ServerRepository
	credRepo   repository.CredentialRepository
	enqueuer   ReconcileEnqueuer
}

func NewServerService(serverRepo repository.ServerRepository, credRepo repository.CredentialRepository, enqueuer ReconcileEnqueuer) ServerService {
	return &serverService{serverRepo: serverRepo, credRepo: credRepo, enqueuer: enqueuer}
}

var _ ServerService = (*serverService)(nil)

func (s *serverService) CreateServer(ctx context.Context, userID uuid.UUID, input *CreateServerInput) (*models.Server, error) {
	if input.Name == "" || input.ServerType == "" || input.Image == "" || input.Location == "" {
		return nil, appErr.New(appErr.CodeInvalid, "name, server_type, image and location are required")
	}

	// Fail fast on a missing credential instead of letting the first
	// reconcile pass discover it.
	var cred models.Credential
	if err := s.credRepo.GetByUserProvider(ctx, userID, models.ProviderHetzner, &cred); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.New(appErr.CodePrecondition, "no hetzner credential stored")
		}
		return nil, err
	}
	if !cred.Valid {
		return nil, appErr.New(appErr.CodePrecondition, "hetzner credential is marked invalid")
	}

	srv := &models.Server{
		UserID:       userID,
		Name:         input.Name,
		ServerType:   input.ServerType,
		Image:        input.Image,
		Location:     input.Location,
		DesiredState: models.DesiredReady,
		Status:       models.StatusCreated,
	}
	if err := s.serverRepo.Create(ctx, srv); err != nil {
		return nil, err
	}

	if err := s.enqueuer.Enqueue(ctx, models.KindServer, srv.ID, 0); err != nil {
		logger.L().Error("enqueue server reconcile failed",
			zap.String("server_id", srv.ID.String()), zap.Error(err))
		return nil, err
	}

	logger.L().Info("server created",
		zap.String("server_id", srv.ID.String()), zap.String("user_id", userID.String()))
	return srv, nil
}

func (s *serverService) GetServer(ctx context.Context, serverID, userID uuid.UUID) (*models.Server, error) {
	var srv models.Server
	if err := s.serverRepo.GetByID(ctx, serverID, &srv); err != nil {
		return nil, err
	}
	if srv.UserID != userID {
		return nil, appErr.New(appErr.CodeUnauthorized, "user does not own server")
	}
	return &srv, nil
}

func (s *serverService) ListServers(ctx context.Context, userID uuid.UUID) ([]models.Server, error) {
	return s.serverRepo.ListByUser(ctx, userID)
}

func (s *serverService) GetServerEvents(ctx context.Context, serverID, userID uuid.UUID) ([]models.Event, error) {
	srv, err := s.GetServer(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	var events []models.Event
	if len(srv.Events) > 0 {
		if err := json.Unmarshal(srv.Events, &events); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "decode server events failed")
		}
	}
	return events, nil
}

func (s *serverService) DeleteServer(ctx context.Context, serverID, userID uuid.UUID) error {
	srv, err := s.GetServer(ctx, serverID, userID)
	if err != nil {
		return err
	}
	if srv.DesiredState == models.DesiredDeleted {
		// Deletion already requested; re-arm the trigger in case the
		// original delivery was lost.
		return s.enqueuer.Enqueue(ctx, models.KindServer, serverID, 0)
	}
	if err := s.serverRepo.SetDesiredState(ctx, serverID, models.DesiredDeleted); err != nil {
		return err
	}
	logger.L().Info("server deletion requested",
		zap.String("server_id", serverID.String()), zap.String("user_id", userID.String()))
	return s.enqueuer.Enqueue(ctx, models.KindServer, serverID, 0)
}

func (s *serverService) RetryServer(ctx context.Context, serverID, userID uuid.UUID) (*models.Server, error) {
	srv, err := s.GetServer(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	if srv.Status != models.StatusFailed {
		return nil, appErr.New(appErr.CodeConflict, "only failed servers can be retried")
	}
	if err := s.serverRepo.TransitionStatus(ctx, serverID, models.StatusFailed, models.StatusProvisioning); err != nil {
		return nil, err
	}
	if err := s.serverRepo.SetLastError(ctx, serverID, ""); err != nil {
		return nil, err
	}
	srv.Status = models.StatusProvisioning
	srv.LastError = ""
	logger.L().Info("server retry requested",
		zap.String("server_id", serverID.String()), zap.String("user_id", userID.String()))
	return srv, s.enqueuer.Enqueue(ctx, models.KindServer, serverID, 0)
}

package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	"github.com/pressdeck/engine/internal/providers"
	"github.com/pressdeck/engine/internal/reconcile"
	"github.com/pressdeck/engine/internal/repository"
	appErr "github.com/pressdeck/engine/pkg/errors"
	"github.com/pressdeck/engine/pkg/logger"
	"github.com/pressdeck/engine/pkg/utils"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type CredentialService interface {
	// Store validates the token against the provider and persists it,
	// replacing any previous credential for the same provider.
	Store(ctx context.Context, userID uuid.UUID, input *StoreCredentialInput) (*models.Credential, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Credential, error)
	// Validate re-checks a stored credential against its provider and
	// records the result.
	Validate(ctx context.Context, userID uuid.UUID, provider string) (*models.Credential, error)
	Delete(ctx context.Context, userID uuid.UUID, provider string) error
}

type StoreCredentialInput struct {
	Provider string
	Token    string
	BaseURL  string
}

type credentialService struct {
	credRepo repository.CredentialRepository
	factory  reconcile.AdapterFactory
}

func NewCredentialService(credRepo repository.CredentialRepository, factory reconcile.AdapterFactory) CredentialService {
	return &credentialService{credRepo: credRepo, factory: factory}
}

var _ CredentialService = (*credentialService)(nil)

func (s *credentialService) Store(ctx context.Context, userID uuid.UUID, input *StoreCredentialInput) (*models.Credential, error) {
	if input.Provider != models.ProviderHetzner && input.Provider != models.ProviderDokploy {
		return nil, appErr.New(appErr.CodeInvalid, "unknown provider").WithMeta("provider", input.Provider)
	}
	if input.Provider == models.ProviderDokploy && input.BaseURL == "" {
		return nil, appErr.New(appErr.CodeInvalid, "base_url is required for dokploy credentials")
	}

	cred := &models.Credential{
		UserID:   userID,
		Provider: input.Provider,
		Token:    []byte(input.Token),
		BaseURL:  input.BaseURL,
	}

	valid := s.check(ctx, cred) == nil
	now := time.Now()
	cred.Valid = valid
	cred.LastCheckedAt = &now

	meta, err := json.Marshal(map[string]string{"fingerprint": utils.Fingerprint(cred.Token)})
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal credential metadata failed")
	}
	cred.Metadata = datatypes.JSON(meta)

	// Replace-on-store: the unique (user, provider) index allows one row.
	var existing models.Credential
	if err := s.credRepo.GetByUserProvider(ctx, userID, input.Provider, &existing); err == nil {
		cred.ID = existing.ID
		cred.CreatedAt = existing.CreatedAt
		if err := s.credRepo.Update(ctx, cred); err != nil {
			return nil, err
		}
	} else if !appErr.IsCode(err, appErr.CodeNotFound) {
		return nil, err
	} else if err := s.credRepo.Create(ctx, cred); err != nil {
		return nil, err
	}

	logger.L().Info("credential stored",
		zap.String("user_id", userID.String()),
		zap.String("provider", input.Provider),
		zap.Bool("valid", valid))
	return cred, nil
}

func (s *credentialService) List(ctx context.Context, userID uuid.UUID) ([]models.Credential, error) {
	return s.credRepo.ListByUser(ctx, userID)
}

func (s *credentialService) Validate(ctx context.Context, userID uuid.UUID, provider string) (*models.Credential, error) {
	var cred models.Credential
	if err := s.credRepo.GetByUserProvider(ctx, userID, provider, &cred); err != nil {
		return nil, err
	}

	valid := s.check(ctx, &cred) == nil
	if err := s.credRepo.SetValidity(ctx, cred.ID, valid); err != nil {
		return nil, err
	}

	now := time.Now()
	cred.Valid = valid
	cred.LastCheckedAt = &now
	return &cred, nil
}

func (s *credentialService) Delete(ctx context.Context, userID uuid.UUID, provider string) error {
	return s.credRepo.DeleteByUserProvider(ctx, userID, provider)
}

// check performs a cheap read-only call against the credential's provider.
func (s *credentialService) check(ctx context.Context, cred *models.Credential) error {
	var err error
	switch cred.Provider {
	case models.ProviderHetzner:
		err = s.factory.Compute(cred).Validate(ctx)
	case models.ProviderDokploy:
		err = s.factory.Deploy(cred).Validate(ctx)
	default:
		return appErr.New(appErr.CodeInvalid, "unknown provider")
	}
	if err != nil {
		logger.L().Warn("credential check failed",
			zap.String("provider", cred.Provider),
			zap.String("kind", string(providers.KindOf(err))),
			zap.Error(err))
	}
	return err
}

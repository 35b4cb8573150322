package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	appErr "github.com/pressdeck/engine/pkg/errors"
	"gorm.io/gorm"
)

type CredentialRepository interface {
	BaseRepository[models.Credential]
	GetByUserProvider(ctx context.Context, userID uuid.UUID, provider string, dest *models.Credential) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Credential, error)
	SetValidity(ctx context.Context, credentialID uuid.UUID, valid bool) error
	DeleteByUserProvider(ctx context.Context, userID uuid.UUID, provider string) error
}

type credentialRepository struct {
	BaseRepository[models.Credential]
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{BaseRepository: NewBaseRepository[models.Credential](db), db: db}
}

func (r *credentialRepository) GetByUserProvider(ctx context.Context, userID uuid.UUID, provider string, dest *models.Credential) error {
	if err := r.db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider).First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "credential not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get credential failed")
	}
	return nil
}

func (r *credentialRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Credential, error) {
	var out []models.Credential
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("provider ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list credentials failed")
	}
	return out, nil
}

// SetValidity updates the validity flag and stamps the check time.
func (r *credentialRepository) SetValidity(ctx context.Context, credentialID uuid.UUID, valid bool) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Credential{}).Where("id = ?", credentialID).
		Updates(map[string]any{"valid": valid, "last_checked_at": &now})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update credential validity failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "credential not found")
	}
	return nil
}

func (r *credentialRepository) DeleteByUserProvider(ctx context.Context, userID uuid.UUID, provider string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider).Delete(&models.Credential{})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "delete credential failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "credential not found")
	}
	return nil
}

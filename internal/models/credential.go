package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provider names accepted for stored credentials.
const (
	ProviderHetzner = "hetzner"
	ProviderDokploy = "dokploy"
)

// Credential stores one set of provider credentials for a user.
// At most one credential per (user, provider).
type Credential struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_credentials_user_provider,unique" json:"user_id" validate:"required"`
	Provider      string         `gorm:"type:varchar(32);not null;index:idx_credentials_user_provider,unique" json:"provider" validate:"required,oneof=hetzner dokploy"`
	Token         []byte         `gorm:"type:bytea;not null" json:"-"`
	BaseURL       string         `gorm:"type:varchar(255)" json:"base_url,omitempty"`
	Valid         bool           `gorm:"not null;default:false" json:"valid"`
	LastCheckedAt *time.Time     `json:"last_checked_at,omitempty"`
	Metadata      datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Deployment represents a WordPress application deployed onto a managed
// server through the Dokploy control plane.
type Deployment struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_deployments_user_site,unique" json:"user_id" validate:"required"`
	ServerID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"server_id" validate:"required"`
	SiteName     string         `gorm:"type:varchar(63);not null;index:idx_deployments_user_site,unique" json:"site_name" validate:"required"`
	Domain       string         `gorm:"type:varchar(255);not null" json:"domain" validate:"required,fqdn"`
	AdminEmail   string         `gorm:"type:varchar(255);not null" json:"admin_email" validate:"required,email"`
	ExternalID   string         `gorm:"type:varchar(64);index" json:"external_id,omitempty"`
	DesiredState DesiredState   `gorm:"type:varchar(16);not null;default:'ready'" json:"desired_state"`
	Status       Status         `gorm:"type:varchar(16);not null;index" json:"status"`
	Config       datatypes.JSON `gorm:"type:jsonb" json:"config,omitempty"`
	LastError    string         `gorm:"type:text" json:"last_error,omitempty"`
	Events       datatypes.JSON `gorm:"type:jsonb" json:"events,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

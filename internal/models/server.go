package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Server represents a managed Hetzner Cloud server.
type Server struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index:idx_servers_user_name,unique" json:"user_id" validate:"required"`
	Name           string         `gorm:"type:varchar(63);not null;index:idx_servers_user_name,unique" json:"name" validate:"required"`
	ServerType     string         `gorm:"type:varchar(32);not null" json:"server_type" validate:"required"`
	Image          string         `gorm:"type:varchar(64);not null" json:"image" validate:"required"`
	Location       string         `gorm:"type:varchar(32);not null" json:"location" validate:"required"`
	ExternalID     string         `gorm:"type:varchar(64);index" json:"external_id,omitempty"`
	PublicIPv4     string         `gorm:"type:varchar(45)" json:"public_ipv4,omitempty"`
	DesiredState   DesiredState   `gorm:"type:varchar(16);not null;default:'ready'" json:"desired_state"`
	Status         Status         `gorm:"type:varchar(16);not null;index" json:"status"`
	IdempotencyKey string         `gorm:"type:varchar(64)" json:"-"`
	LastError      string         `gorm:"type:text" json:"last_error,omitempty"`
	Events         datatypes.JSON `gorm:"type:jsonb" json:"events,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// ResourceKind identifies the resource type a reconcile task drives.
type ResourceKind string

const (
	KindServer     ResourceKind = "server"
	KindDeployment ResourceKind = "deployment"
)

// Task claim states.
const (
	TaskScheduled = "scheduled"
	TaskRunning   = "running"
)

// ReconcileTask is the durable scheduling record for one resource. The
// unique (kind, resource_id) index guarantees at most one outstanding task
// per resource; the scheduled->running claim guarantees at most one active
// reconciliation even under duplicate queue deliveries.
type ReconcileTask struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ResourceKind ResourceKind `gorm:"type:varchar(16);not null;index:idx_tasks_kind_resource,unique" json:"resource_kind"`
	ResourceID   uuid.UUID    `gorm:"type:uuid;not null;index:idx_tasks_kind_resource,unique" json:"resource_id"`
	State        string       `gorm:"type:varchar(16);not null;default:'scheduled'" json:"state"`
	Attempts     int          `gorm:"not null;default:0" json:"attempts"`
	NextRetryAt  time.Time    `gorm:"index" json:"next_retry_at"`
	LastError    string       `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

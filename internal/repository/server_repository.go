package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	appErr "github.com/pressdeck/engine/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServerRepository interface {
	BaseRepository[models.Server]
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Server, error)
	ListNonTerminal(ctx context.Context) ([]models.Server, error)
	// TransitionStatus moves observed state from -> to. The guarded update
	// keeps transitions ordered even when two writers race: the loser
	// matches zero rows and gets a conflict back.
	TransitionStatus(ctx context.Context, serverID uuid.UUID, from, to models.Status) error
	SetDesiredState(ctx context.Context, serverID uuid.UUID, desired models.DesiredState) error
	SetExternalID(ctx context.Context, serverID uuid.UUID, externalID string) error
	SetIdempotencyKey(ctx context.Context, serverID uuid.UUID, key string) error
	SetPublicIPv4(ctx context.Context, serverID uuid.UUID, ip string) error
	SetLastError(ctx context.Context, serverID uuid.UUID, msg string) error
	AppendEvent(ctx context.Context, serverID uuid.UUID, event models.Event) error
}

type serverRepository struct {
	BaseRepository[models.Server]
	db *gorm.DB
}

func NewServerRepository(db *gorm.DB) ServerRepository {
	return &serverRepository{BaseRepository: NewBaseRepository[models.Server](db), db: db}
}

func (r *serverRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Server, error) {
	var out []models.Server
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list servers failed")
	}
	return out, nil
}

func (r *serverRepository) ListNonTerminal(ctx context.Context) ([]models.Server, error) {
	var out []models.Server
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []models.Status{models.StatusReady, models.StatusFailed, models.StatusDeleted}).
		Or("status IN ? AND desired_state = ?", []models.Status{models.StatusReady, models.StatusFailed}, models.DesiredDeleted).
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list non-terminal servers failed")
	}
	return out, nil
}

func (r *serverRepository) TransitionStatus(ctx context.Context, serverID uuid.UUID, from, to models.Status) error {
	if !models.CanTransition(from, to) {
		return appErr.New(appErr.CodeInternal, "illegal server status transition").
			WithMeta("from", string(from)).WithMeta("to", string(to))
	}
	res := r.db.WithContext(ctx).Model(&models.Server{}).
		Where("id = ? AND status = ?", serverID, from).
		Update("status", to)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update server status failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeConflict, "server status changed concurrently")
	}
	return nil
}

func (r *serverRepository) SetDesiredState(ctx context.Context, serverID uuid.UUID, desired models.DesiredState) error {
	return r.updateColumn(ctx, serverID, "desired_state", desired, "update server desired state failed")
}

func (r *serverRepository) SetExternalID(ctx context.Context, serverID uuid.UUID, externalID string) error {
	return r.updateColumn(ctx, serverID, "external_id", externalID, "update server external id failed")
}

func (r *serverRepository) SetIdempotencyKey(ctx context.Context, serverID uuid.UUID, key string) error {
	return r.updateColumn(ctx, serverID, "idempotency_key", key, "update server idempotency key failed")
}

func (r *serverRepository) SetPublicIPv4(ctx context.Context, serverID uuid.UUID, ip string) error {
	return r.updateColumn(ctx, serverID, "public_ipv4", ip, "update server public ip failed")
}

func (r *serverRepository) SetLastError(ctx context.Context, serverID uuid.UUID, msg string) error {
	return r.updateColumn(ctx, serverID, "last_error", msg, "update server last error failed")
}

func (r *serverRepository) updateColumn(ctx context.Context, serverID uuid.UUID, column string, value any, failMsg string) error {
	res := r.db.WithContext(ctx).Model(&models.Server{}).Where("id = ?", serverID).Update(column, value)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, failMsg)
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "server not found")
	}
	return nil
}

func (r *serverRepository) AppendEvent(ctx context.Context, serverID uuid.UUID, event models.Event) error {
	var s models.Server
	if err := r.GetByID(ctx, serverID, &s); err != nil {
		return err
	}
	events, err := appendEvent(s.Events, event)
	if err != nil {
		return err
	}
	return r.updateColumn(ctx, serverID, "events", events, "append server event failed")
}

// appendEvent decodes the stored event array, appends one entry, and
// re-encodes it. Shared by the server and deployment repositories.
func appendEvent(stored datatypes.JSON, event models.Event) (datatypes.JSON, error) {
	var events []models.Event
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &events); err != nil {
			events = nil
		}
	}
	events = append(events, event)
	b, err := json.Marshal(events)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "marshal events failed")
	}
	return datatypes.JSON(b), nil
}

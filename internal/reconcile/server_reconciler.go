package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	"github.com/pressdeck/engine/internal/providers"
	"github.com/pressdeck/engine/internal/repository"
	appErr "github.com/pressdeck/engine/pkg/errors"
	"github.com/pressdeck/engine/pkg/logger"
	"go.uber.org/zap"
)

// ServerReconciler drives a Hetzner server record through its lifecycle:
// created -> provisioning -> ready, and ready/any -> deprovisioning ->
// deleted once deletion is desired.
type ServerReconciler struct {
	servers repository.ServerRepository
	creds   repository.CredentialRepository
	factory AdapterFactory
}

func NewServerReconciler(servers repository.ServerRepository, creds repository.CredentialRepository, factory AdapterFactory) *ServerReconciler {
	return &ServerReconciler{servers: servers, creds: creds, factory: factory}
}

var _ Reconciler = (*ServerReconciler)(nil)

func (r *ServerReconciler) Kind() models.ResourceKind { return models.KindServer }

func (r *ServerReconciler) Reconcile(ctx context.Context, resourceID uuid.UUID) (Outcome, error) {
	var s models.Server
	if err := r.servers.GetByID(ctx, resourceID, &s); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			// Record already removed, nothing left to drive.
			return OutcomeSucceeded, nil
		}
		return OutcomeFailedRetryable, err
	}

	if s.DesiredState == models.DesiredDeleted {
		return r.reconcileDelete(ctx, &s)
	}

	switch s.Status {
	case models.StatusReady:
		// Idempotent no-op.
		return OutcomeSucceeded, nil
	case models.StatusFailed:
		// Failed resources wait for an explicit retry or delete.
		return OutcomeSucceeded, nil
	case models.StatusCreated:
		return r.reconcileCreate(ctx, &s)
	case models.StatusProvisioning:
		return r.reconcilePoll(ctx, &s)
	default:
		return OutcomeFailedTerminal, appErr.New(appErr.CodeInternal, "unexpected server status").
			WithMeta("status", string(s.Status))
	}
}

func (r *ServerReconciler) reconcileCreate(ctx context.Context, s *models.Server) (Outcome, error) {
	compute, cred, outcome, err := r.compute(ctx, s)
	if compute == nil {
		return outcome, err
	}

	// The idempotency key is persisted before the first network call so a
	// retried create after a crash carries the same token.
	if s.IdempotencyKey == "" {
		key := uuid.NewString()
		if err := r.servers.SetIdempotencyKey(ctx, s.ID, key); err != nil {
			return OutcomeFailedRetryable, err
		}
		s.IdempotencyKey = key
	}

	// Probe by name first: if an earlier create succeeded but its response
	// was lost, adopt the existing server instead of creating a duplicate.
	obs, err := compute.DescribeServerByName(ctx, s.Name)
	switch {
	case err == nil:
		logger.L().Info("adopting existing server",
			zap.String("server_id", s.ID.String()), zap.String("external_id", obs.ExternalID))
	case providers.IsKind(err, providers.ErrNotFound):
		obs, err = compute.CreateServer(ctx, providers.ServerSpec{
			Name:           s.Name,
			ServerType:     s.ServerType,
			Image:          s.Image,
			Location:       s.Location,
			IdempotencyKey: s.IdempotencyKey,
		})
		if err != nil {
			return r.failure(ctx, cred, err)
		}
	default:
		return r.failure(ctx, cred, err)
	}

	if err := r.servers.SetExternalID(ctx, s.ID, obs.ExternalID); err != nil {
		return OutcomeFailedRetryable, err
	}
	if err := r.servers.TransitionStatus(ctx, s.ID, models.StatusCreated, models.StatusProvisioning); err != nil {
		return OutcomeFailedRetryable, err
	}
	return OutcomeAdvanced, nil
}

func (r *ServerReconciler) reconcilePoll(ctx context.Context, s *models.Server) (Outcome, error) {
	compute, cred, outcome, err := r.compute(ctx, s)
	if compute == nil {
		return outcome, err
	}

	if s.ExternalID == "" {
		// Two ways here without an external id: a crash between create and
		// persisting the id, or a user retry of a create that never landed.
		// The name probe distinguishes them.
		if s.IdempotencyKey == "" {
			key := uuid.NewString()
			if err := r.servers.SetIdempotencyKey(ctx, s.ID, key); err != nil {
				return OutcomeFailedRetryable, err
			}
			s.IdempotencyKey = key
		}
		obs, err := compute.DescribeServerByName(ctx, s.Name)
		if providers.IsKind(err, providers.ErrNotFound) {
			obs, err = compute.CreateServer(ctx, providers.ServerSpec{
				Name:           s.Name,
				ServerType:     s.ServerType,
				Image:          s.Image,
				Location:       s.Location,
				IdempotencyKey: s.IdempotencyKey,
			})
		}
		if err != nil {
			return r.failure(ctx, cred, err)
		}
		if err := r.servers.SetExternalID(ctx, s.ID, obs.ExternalID); err != nil {
			return OutcomeFailedRetryable, err
		}
		return OutcomeAdvanced, nil
	}

	obs, err := compute.DescribeServer(ctx, s.ExternalID)
	if err != nil {
		return r.failure(ctx, cred, err)
	}
	if !obs.Running || obs.PublicIPv4 == "" {
		return OutcomeWaiting, nil
	}

	if err := r.servers.SetPublicIPv4(ctx, s.ID, obs.PublicIPv4); err != nil {
		return OutcomeFailedRetryable, err
	}
	if err := r.servers.SetLastError(ctx, s.ID, ""); err != nil {
		return OutcomeFailedRetryable, err
	}
	if err := r.servers.TransitionStatus(ctx, s.ID, models.StatusProvisioning, models.StatusReady); err != nil {
		return OutcomeFailedRetryable, err
	}
	logger.L().Info("server ready",
		zap.String("server_id", s.ID.String()), zap.String("public_ipv4", obs.PublicIPv4))
	return OutcomeSucceeded, nil
}

func (r *ServerReconciler) reconcileDelete(ctx context.Context, s *models.Server) (Outcome, error) {
	switch s.Status {
	case models.StatusDeleted:
		return OutcomeSucceeded, nil
	case models.StatusDeprovisioning:
		// fall through to the destroy step below
	default:
		// Any in-flight create switches to the deletion path here before
		// its next side effect.
		if err := r.servers.TransitionStatus(ctx, s.ID, s.Status, models.StatusDeprovisioning); err != nil {
			return OutcomeFailedRetryable, err
		}
		return OutcomeAdvanced, nil
	}

	if s.ExternalID != "" {
		compute, cred, outcome, err := r.compute(ctx, s)
		if compute == nil {
			return outcome, err
		}
		if err := compute.DestroyServer(ctx, s.ExternalID); err != nil && !providers.IsKind(err, providers.ErrNotFound) {
			return r.failure(ctx, cred, err)
		}
	}

	if err := r.servers.TransitionStatus(ctx, s.ID, models.StatusDeprovisioning, models.StatusDeleted); err != nil {
		return OutcomeFailedRetryable, err
	}
	if err := r.servers.Delete(ctx, s.ID); err != nil && !appErr.IsCode(err, appErr.CodeNotFound) {
		return OutcomeFailedRetryable, err
	}
	logger.L().Info("server deleted", zap.String("server_id", s.ID.String()))
	return OutcomeSucceeded, nil
}

// compute resolves the user's Hetzner credential and builds an adapter.
// A nil provider in the return value means reconciliation cannot proceed
// and the accompanying outcome applies.
func (r *ServerReconciler) compute(ctx context.Context, s *models.Server) (providers.ComputeProvider, *models.Credential, Outcome, error) {
	var cred models.Credential
	if err := r.creds.GetByUserProvider(ctx, s.UserID, models.ProviderHetzner, &cred); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, nil, OutcomeFailedTerminal,
				providers.NewError(providers.ErrConfigInvalid, err)
		}
		return nil, nil, OutcomeFailedRetryable, err
	}
	if !cred.Valid {
		return nil, nil, OutcomeFailedTerminal,
			providers.NewError(providers.ErrAuthInvalid, appErr.New(appErr.CodePrecondition, "hetzner credential marked invalid"))
	}
	return r.factory.Compute(&cred), &cred, 0, nil
}

// failure classifies a provider error into an outcome. Auth failures also
// invalidate the stored credential so nothing retries against it.
func (r *ServerReconciler) failure(ctx context.Context, cred *models.Credential, err error) (Outcome, error) {
	kind := providers.KindOf(err)
	if kind == providers.ErrAuthInvalid && cred != nil {
		if verr := r.creds.SetValidity(ctx, cred.ID, false); verr != nil {
			logger.L().Error("invalidate credential failed",
				zap.String("credential_id", cred.ID.String()), zap.Error(verr))
		}
	}
	if providers.Retryable(kind) {
		return OutcomeFailedRetryable, err
	}
	return OutcomeFailedTerminal, err
}

func (r *ServerReconciler) RecordFailure(ctx context.Context, resourceID uuid.UUID, attempt int, message string) error {
	if err := r.servers.SetLastError(ctx, resourceID, message); err != nil {
		return err
	}
	return r.servers.AppendEvent(ctx, resourceID, models.Event{
		Timestamp: time.Now(),
		Level:     "error",
		Message:   message,
		Attempt:   attempt,
	})
}

func (r *ServerReconciler) MarkFailed(ctx context.Context, resourceID uuid.UUID, message string) error {
	var s models.Server
	if err := r.servers.GetByID(ctx, resourceID, &s); err != nil {
		return err
	}
	if s.Status == models.StatusFailed {
		return nil
	}
	if err := r.servers.TransitionStatus(ctx, resourceID, s.Status, models.StatusFailed); err != nil {
		return err
	}
	return r.servers.SetLastError(ctx, resourceID, message)
}

func (r *ServerReconciler) Pending(ctx context.Context) ([]uuid.UUID, error) {
	servers, err := r.servers.ListNonTerminal(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(servers))
	for _, s := range servers {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

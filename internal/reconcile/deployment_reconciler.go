package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	"github.com/pressdeck/engine/internal/providers"
	"github.com/pressdeck/engine/internal/repository"
	appErr "github.com/pressdeck/engine/pkg/errors"
	"github.com/pressdeck/engine/pkg/logger"
	"go.uber.org/zap"
)

// DeploymentReconciler drives a WordPress deployment through its lifecycle.
// A deployment cannot start until its target server is ready with a public
// address, so early passes report waiting rather than failing.
type DeploymentReconciler struct {
	deployments repository.DeploymentRepository
	servers     repository.ServerRepository
	creds       repository.CredentialRepository
	factory     AdapterFactory
}

func NewDeploymentReconciler(deployments repository.DeploymentRepository, servers repository.ServerRepository, creds repository.CredentialRepository, factory AdapterFactory) *DeploymentReconciler {
	return &DeploymentReconciler{deployments: deployments, servers: servers, creds: creds, factory: factory}
}

var _ Reconciler = (*DeploymentReconciler)(nil)

func (r *DeploymentReconciler) Kind() models.ResourceKind { return models.KindDeployment }

func (r *DeploymentReconciler) Reconcile(ctx context.Context, resourceID uuid.UUID) (Outcome, error) {
	var d models.Deployment
	if err := r.deployments.GetByID(ctx, resourceID, &d); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return OutcomeSucceeded, nil
		}
		return OutcomeFailedRetryable, err
	}

	if d.DesiredState == models.DesiredDeleted {
		return r.reconcileDelete(ctx, &d)
	}

	switch d.Status {
	case models.StatusReady:
		return OutcomeSucceeded, nil
	case models.StatusFailed:
		return OutcomeSucceeded, nil
	case models.StatusCreated:
		return r.reconcileCreate(ctx, &d)
	case models.StatusProvisioning:
		return r.reconcilePoll(ctx, &d)
	default:
		return OutcomeFailedTerminal, appErr.New(appErr.CodeInternal, "unexpected deployment status").
			WithMeta("status", string(d.Status))
	}
}

func (r *DeploymentReconciler) reconcileCreate(ctx context.Context, d *models.Deployment) (Outcome, error) {
	if d.ExternalID == "" {
		srv, outcome, err := r.targetServer(ctx, d)
		if srv == nil {
			return outcome, err
		}
		deploy, cred, outcome, err := r.deploy(ctx, d)
		if deploy == nil {
			return outcome, err
		}
		return r.createApplication(ctx, d, srv, deploy, cred)
	}

	if err := r.deployments.TransitionStatus(ctx, d.ID, models.StatusCreated, models.StatusProvisioning); err != nil {
		return OutcomeFailedRetryable, err
	}
	return OutcomeAdvanced, nil
}

// createApplication is the single create side effect, shared by the initial
// pass and the retry-without-application path.
func (r *DeploymentReconciler) createApplication(ctx context.Context, d *models.Deployment, srv *models.Server, deploy providers.DeployProvider, cred *models.Credential) (Outcome, error) {
	env := map[string]string{}
	if len(d.Config) > 0 {
		if err := json.Unmarshal(d.Config, &env); err != nil {
			return OutcomeFailedTerminal,
				providers.NewError(providers.ErrConfigInvalid, fmt.Errorf("decode deployment config: %w", err))
		}
	}
	obs, err := deploy.CreateApplication(ctx, providers.AppSpec{
		Name:       d.SiteName,
		ServerAddr: srv.PublicIPv4,
		Domain:     d.Domain,
		AdminEmail: d.AdminEmail,
		Env:        env,
	})
	// A partial create can fail after the application exists. Record the id
	// whenever the provider reports one so the record never orphans an
	// external application.
	if obs != nil && obs.ExternalID != "" {
		if serr := r.deployments.SetExternalID(ctx, d.ID, obs.ExternalID); serr != nil {
			return OutcomeFailedRetryable, serr
		}
	}
	if err != nil {
		return r.failure(ctx, cred, err)
	}
	return OutcomeAdvanced, nil
}

func (r *DeploymentReconciler) reconcilePoll(ctx context.Context, d *models.Deployment) (Outcome, error) {
	deploy, cred, outcome, err := r.deploy(ctx, d)
	if deploy == nil {
		return outcome, err
	}

	if d.ExternalID == "" {
		// A user retry after a failed create re-enters here without an
		// application; run the create step now.
		srv, outcome, err := r.targetServer(ctx, d)
		if srv == nil {
			return outcome, err
		}
		return r.createApplication(ctx, d, srv, deploy, cred)
	}

	obs, err := deploy.DescribeApplication(ctx, d.ExternalID)
	if err != nil {
		return r.failure(ctx, cred, err)
	}
	if !obs.Running {
		return OutcomeWaiting, nil
	}

	if err := r.deployments.SetLastError(ctx, d.ID, ""); err != nil {
		return OutcomeFailedRetryable, err
	}
	if err := r.deployments.TransitionStatus(ctx, d.ID, models.StatusProvisioning, models.StatusReady); err != nil {
		return OutcomeFailedRetryable, err
	}
	logger.L().Info("deployment ready",
		zap.String("deployment_id", d.ID.String()), zap.String("site_name", d.SiteName))
	return OutcomeSucceeded, nil
}

func (r *DeploymentReconciler) reconcileDelete(ctx context.Context, d *models.Deployment) (Outcome, error) {
	switch d.Status {
	case models.StatusDeleted:
		return OutcomeSucceeded, nil
	case models.StatusDeprovisioning:
		// fall through to the destroy step below
	default:
		if err := r.deployments.TransitionStatus(ctx, d.ID, d.Status, models.StatusDeprovisioning); err != nil {
			return OutcomeFailedRetryable, err
		}
		return OutcomeAdvanced, nil
	}

	if d.ExternalID != "" {
		deploy, cred, outcome, err := r.deploy(ctx, d)
		if deploy == nil {
			return outcome, err
		}
		if err := deploy.DestroyApplication(ctx, d.ExternalID); err != nil && !providers.IsKind(err, providers.ErrNotFound) {
			return r.failure(ctx, cred, err)
		}
	}

	if err := r.deployments.TransitionStatus(ctx, d.ID, models.StatusDeprovisioning, models.StatusDeleted); err != nil {
		return OutcomeFailedRetryable, err
	}
	if err := r.deployments.Delete(ctx, d.ID); err != nil && !appErr.IsCode(err, appErr.CodeNotFound) {
		return OutcomeFailedRetryable, err
	}
	logger.L().Info("deployment deleted", zap.String("deployment_id", d.ID.String()))
	return OutcomeSucceeded, nil
}

// targetServer resolves the deployment's server dependency. A nil server in
// the return value means the deployment cannot proceed this pass.
func (r *DeploymentReconciler) targetServer(ctx context.Context, d *models.Deployment) (*models.Server, Outcome, error) {
	var srv models.Server
	if err := r.servers.GetByID(ctx, d.ServerID, &srv); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, OutcomeFailedTerminal,
				providers.NewError(providers.ErrConfigInvalid, appErr.New(appErr.CodeNotFound, "target server no longer exists"))
		}
		return nil, OutcomeFailedRetryable, err
	}
	if srv.Status == models.StatusFailed || srv.DesiredState == models.DesiredDeleted {
		return nil, OutcomeFailedTerminal,
			providers.NewError(providers.ErrConfigInvalid, appErr.New(appErr.CodePrecondition, "target server is not provisionable"))
	}
	if srv.Status != models.StatusReady || srv.PublicIPv4 == "" {
		return nil, OutcomeWaiting, nil
	}
	return &srv, 0, nil
}

func (r *DeploymentReconciler) deploy(ctx context.Context, d *models.Deployment) (providers.DeployProvider, *models.Credential, Outcome, error) {
	var cred models.Credential
	if err := r.creds.GetByUserProvider(ctx, d.UserID, models.ProviderDokploy, &cred); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, nil, OutcomeFailedTerminal,
				providers.NewError(providers.ErrConfigInvalid, err)
		}
		return nil, nil, OutcomeFailedRetryable, err
	}
	if !cred.Valid {
		return nil, nil, OutcomeFailedTerminal,
			providers.NewError(providers.ErrAuthInvalid, appErr.New(appErr.CodePrecondition, "dokploy credential marked invalid"))
	}
	return r.factory.Deploy(&cred), &cred, 0, nil
}

func (r *DeploymentReconciler) failure(ctx context.Context, cred *models.Credential, err error) (Outcome, error) {
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

func (r *DeploymentReconciler) RecordFailure(ctx context.Context, resourceID uuid.UUID, attempt int, message string) error {
	if err := r.deployments.SetLastError(ctx, resourceID, message); err != nil {
		return err
	}
	return r.deployments.AppendEvent(ctx, resourceID, models.Event{
		Timestamp: time.Now(),
		Level:     "error",
		Message:   message,
		Attempt:   attempt,
	})
}

func (r *DeploymentReconciler) MarkFailed(ctx context.Context, resourceID uuid.UUID, message string) error {
	var d models.Deployment
	if err := r.deployments.GetByID(ctx, resourceID, &d); err != nil {
		return err
	}
	if d.Status == models.StatusFailed {
		return nil
	}
	if err := r.deployments.TransitionStatus(ctx, resourceID, d.Status, models.StatusFailed); err != nil {
		return err
	}
	return r.deployments.SetLastError(ctx, resourceID, message)
}

func (r *DeploymentReconciler) Pending(ctx context.Context) ([]uuid.UUID, error) {
	deployments, err := r.deployments.ListNonTerminal(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(deployments))
	for _, d := range deployments {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

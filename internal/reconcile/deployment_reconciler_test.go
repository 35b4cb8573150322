package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	"github.com/pressdeck/engine/internal/providers"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type deploymentFixture struct {
	deployments *fakeDeploymentRepo
	servers     *fakeServerRepo
	creds       *fakeCredRepo
	deploy      *mockDeploy
	rec         *DeploymentReconciler
	cred        *models.Credential
	srv         *models.Server
	dep         *models.Deployment
}

func newDeploymentFixture(t *testing.T, serverStatus models.Status, serverIP string) *deploymentFixture {
	t.Helper()
	deployments := newFakeDeploymentRepo()
	servers := newFakeServerRepo()
	creds := newFakeCredRepo()
	deploy := &mockDeploy{}

	userID := uuid.New()
	cred := &models.Credential{UserID: userID, Provider: models.ProviderDokploy, Token: []byte("tok"), BaseURL: "https://dokploy.example.com", Valid: true}
	creds.add(cred)

	srv := &models.Server{
		UserID:       userID,
		Name:         "wp-host-1",
		Status:       serverStatus,
		DesiredState: models.DesiredReady,
		PublicIPv4:   serverIP,
	}
	servers.add(srv)

	dep := &models.Deployment{
		UserID:       userID,
		ServerID:     srv.ID,
		SiteName:     "my-blog",
		Domain:       "blog.example.com",
		AdminEmail:   "admin@example.com",
		Status:       models.StatusCreated,
		DesiredState: models.DesiredReady,
	}
	deployments.add(dep)

	rec := NewDeploymentReconciler(deployments, servers, creds, staticFactory{deploy: deploy})
	return &deploymentFixture{
		deployments: deployments, servers: servers, creds: creds,
		deploy: deploy, rec: rec, cred: cred, srv: srv, dep: dep,
	}
}

func TestDeploymentWaitsForServer(t *testing.T) {
	f := newDeploymentFixture(t, models.StatusProvisioning, "")

	outcome, err := f.rec.Reconcile(context.Background(), f.dep.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeWaiting, outcome)
	f.deploy.AssertNotCalled(t, "CreateApplication", mock.Anything, mock.Anything)
}

func TestDeploymentCreateThenPollToReady(t *testing.T) {
	f := newDeploymentFixture(t, models.StatusReady, "192.0.2.10")
	ctx := context.Background()

	f.deploy.On("CreateApplication", mock.Anything, mock.MatchedBy(func(spec providers.AppSpec) bool {
		return spec.Name == "my-blog" && spec.ServerAddr == "192.0.2.10" && spec.Domain == "blog.example.com"
	})).Return(&providers.AppObservation{ExternalID: "app-1"}, nil).Once()

	outcome, err := f.rec.Reconcile(ctx, f.dep.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeAdvanced, outcome)
	require.Equal(t, "app-1", f.deployments.get(f.dep.ID).ExternalID)

	// Next pass records the transition, then polling takes over.
	outcome, err = f.rec.Reconcile(ctx, f.dep.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeAdvanced, outcome)
	require.Equal(t, models.StatusProvisioning, f.deployments.get(f.dep.ID).Status)

	f.deploy.On("DescribeApplication", mock.Anything, "app-1").
		Return(&providers.AppObservation{ExternalID: "app-1", Running: false}, nil).Once()
	outcome, err = f.rec.Reconcile(ctx, f.dep.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeWaiting, outcome)

	f.deploy.On("DescribeApplication", mock.Anything, "app-1").
		Return(&providers.AppObservation{ExternalID: "app-1", Running: true}, nil).Once()
	outcome, err = f.rec.Reconcile(ctx, f.dep.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, outcome)
	require.Equal(t, models.StatusReady, f.deployments.get(f.dep.ID).Status)
	f.deploy.AssertExpectations(t)
}

func TestDeploymentServerGoneFailsTerminal(t *testing.T) {
	f := newDeploymentFixture(t, models.StatusReady, "192.0.2.10")
	require.NoError(t, f.servers.Delete(context.Background(), f.srv.ID))

	outcome, err := f.rec.Reconcile(context.Background(), f.dep.ID)
	require.Error(t, err)
	require.Equal(t, OutcomeFailedTerminal, outcome)
	require.True(t, providers.IsKind(err, providers.ErrConfigInvalid))
}

func TestDeploymentServerMarkedForDeletionFailsTerminal(t *testing.T) {
	f := newDeploymentFixture(t, models.StatusReady, "192.0.2.10")
	require.NoError(t, f.servers.SetDesiredState(context.Background(), f.srv.ID, models.DesiredDeleted))

	outcome, err := f.rec.Reconcile(context.Background(), f.dep.ID)
	require.Error(t, err)
	require.Equal(t, OutcomeFailedTerminal, outcome)
}

func TestDeploymentInvalidCredentialShortCircuits(t *testing.T) {
	f := newDeploymentFixture(t, models.StatusReady, "192.0.2.10")
	f.cred.Valid = false
	require.NoError(t, f.creds.Update(context.Background(), f.cred))

	outcome, err := f.rec.Reconcile(context.Background(), f.dep.ID)
	require.Error(t, err)
	require.Equal(t, OutcomeFailedTerminal, outcome)
	require.True(t, providers.IsKind(err, providers.ErrAuthInvalid))
	f.deploy.AssertNotCalled(t, "CreateApplication", mock.Anything, mock.Anything)
}

func TestDeploymentPartialCreateRecordsExternalID(t *testing.T) {
	f := newDeploymentFixture(t, models.StatusReady, "192.0.2.10")
	ctx := context.Background()

	// The application was created but the deploy trigger failed: the id must
	// be persisted so the retry polls instead of re-creating.
	transient := providers.NewError(providers.ErrTransient, errors.New("dokploy returned 500"))
	f.deploy.On("CreateApplication", mock.Anything, mock.Anything).
		Return(&providers.AppObservation{ExternalID: "app-1"}, transient).Once()

	outcome, err := f.rec.Reconcile(ctx, f.dep.ID)
	require.Error(t, err)
	require.Equal(t, OutcomeFailedRetryable, outcome)
	require.Equal(t, "app-1", f.deployments.get(f.dep.ID).ExternalID)

	// The retry pass sees the recorded id and never calls create again.
	outcome, err = f.rec.Reconcile(ctx, f.dep.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeAdvanced, outcome)
	require.Equal(t, models.StatusProvisioning, f.deployments.get(f.dep.ID).Status)
	f.deploy.AssertExpectations(t)
}

func TestDeploymentConflictOnDuplicateNameFailsTerminal(t *testing.T) {
	f := newDeploymentFixture(t, models.StatusReady, "192.0.2.10")

	conflict := providers.NewError(providers.ErrConflict, errors.New("appName already in use"))
	f.deploy.On("CreateApplication", mock.Anything, mock.Anything).Return(nil, conflict).Once()

	outcome, err := f.rec.Reconcile(context.Background(), f.dep.ID)
	require.Error(t, err)
	require.Equal(t, OutcomeFailedTerminal, outcome)
}

func TestDeploymentDeleteCleansUpApplication(t *testing.T) {
	f := newDeploymentFixture(t, models.StatusReady, "192.0.2.10")
	ctx := context.Background()
	require.NoError(t, f.deployments.SetExternalID(ctx, f.dep.ID, "app-1"))
	require.NoError(t, f.deployments.TransitionStatus(ctx, f.dep.ID, models.StatusCreated, models.StatusProvisioning))
	require.NoError(t, f.deployments.TransitionStatus(ctx, f.dep.ID, models.StatusProvisioning, models.StatusReady))
	require.NoError(t, f.deployments.SetDesiredState(ctx, f.dep.ID, models.DesiredDeleted))

	outcome, err := f.rec.Reconcile(ctx, f.dep.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeAdvanced, outcome)
	require.Equal(t, models.StatusDeprovisioning, f.deployments.get(f.dep.ID).Status)

	f.deploy.On("DestroyApplication", mock.Anything, "app-1").Return(nil).Once()
	outcome, err = f.rec.Reconcile(ctx, f.dep.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, outcome)
	require.Nil(t, f.deployments.get(f.dep.ID))
	f.deploy.AssertExpectations(t)
}

func TestDeploymentRetryWithoutApplicationRecreates(t *testing.T) {
	f := newDeploymentFixture(t, models.StatusReady, "192.0.2.10")
	ctx := context.Background()
	// Simulate a user retry after a terminal create failure: status was moved
	// back to provisioning but no application exists yet.
	require.NoError(t, f.deployments.TransitionStatus(ctx, f.dep.ID, models.StatusCreated, models.StatusProvisioning))

	f.deploy.On("CreateApplication", mock.Anything, mock.Anything).
		Return(&providers.AppObservation{ExternalID: "app-2"}, nil).Once()

	outcome, err := f.rec.Reconcile(ctx, f.dep.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeAdvanced, outcome)
	require.Equal(t, "app-2", f.deployments.get(f.dep.ID).ExternalID)
}

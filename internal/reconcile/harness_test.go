package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pressdeck/engine/internal/models"
	"github.com/pressdeck/engine/internal/providers"
	appErr "github.com/pressdeck/engine/pkg/errors"
	"github.com/pressdeck/engine/pkg/logger"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

// In-memory repositories with the same guarded-update semantics as the
// database-backed ones, so state machine scenarios run without Postgres.

type fakeServerRepo struct {
	mu      sync.Mutex
	servers map[uuid.UUID]*models.Server
}

func newFakeServerRepo() *fakeServerRepo {
	return &fakeServerRepo{servers: map[uuid.UUID]*models.Server{}}
}

func (r *fakeServerRepo) add(s *models.Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cp := *s
	r.servers[s.ID] = &cp
}

func (r *fakeServerRepo) get(id uuid.UUID) *models.Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.servers[id]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (r *fakeServerRepo) Create(ctx context.Context, obj *models.Server) error {
	r.add(obj)
	return nil
}

func (r *fakeServerRepo) GetByID(ctx context.Context, id any, dest *models.Server) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[id.(uuid.UUID)]
	if !ok {
		return appErr.New(appErr.CodeNotFound, "entity not found")
	}
	*dest = *s
	return nil
}

func (r *fakeServerRepo) Update(ctx context.Context, obj *models.Server) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *obj
	r.servers[obj.ID] = &cp
	return nil
}

func (r *fakeServerRepo) Delete(ctx context.Context, id any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.servers[id.(uuid.UUID)]; !ok {
		return appErr.New(appErr.CodeNotFound, "entity not found")
	}
	delete(r.servers, id.(uuid.UUID))
	return nil
}

func (r *fakeServerRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Server
	for _, s := range r.servers {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeServerRepo) ListNonTerminal(ctx context.Context) ([]models.Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Server
	for _, s := range r.servers {
		if !models.Terminal(s.Status, s.DesiredState) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeServerRepo) TransitionStatus(ctx context.Context, serverID uuid.UUID, from, to models.Status) error {
	if !models.CanTransition(from, to) {
		return appErr.New(appErr.CodeInternal, "illegal server status transition")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[serverID]
	if !ok || s.Status != from {
		return appErr.New(appErr.CodeConflict, "server status changed concurrently")
	}
	s.Status = to
	return nil
}

func (r *fakeServerRepo) setField(serverID uuid.UUID, set func(*models.Server)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[serverID]
	if !ok {
		return appErr.New(appErr.CodeNotFound, "server not found")
	}
	set(s)
	return nil
}

func (r *fakeServerRepo) SetDesiredState(ctx context.Context, serverID uuid.UUID, desired models.DesiredState) error {
	return r.setField(serverID, func(s *models.Server) { s.DesiredState = desired })
}

func (r *fakeServerRepo) SetExternalID(ctx context.Context, serverID uuid.UUID, externalID string) error {
	return r.setField(serverID, func(s *models.Server) { s.ExternalID = externalID })
}

func (r *fakeServerRepo) SetIdempotencyKey(ctx context.Context, serverID uuid.UUID, key string) error {
	return r.setField(serverID, func(s *models.Server) { s.IdempotencyKey = key })
}

func (r *fakeServerRepo) SetPublicIPv4(ctx context.Context, serverID uuid.UUID, ip string) error {
	return r.setField(serverID, func(s *models.Server) { s.PublicIPv4 = ip })
}

func (r *fakeServerRepo) SetLastError(ctx context.Context, serverID uuid.UUID, msg string) error {
	return r.setField(serverID, func(s *models.Server) { s.LastError = msg })
}

func (r *fakeServerRepo) AppendEvent(ctx context.Context, serverID uuid.UUID, event models.Event) error {
	return r.setField(serverID, func(s *models.Server) { s.Events = appendEventJSON(s.Events, event) })
}

type fakeDeploymentRepo struct {
	mu          sync.Mutex
	deployments map[uuid.UUID]*models.Deployment
}

func newFakeDeploymentRepo() *fakeDeploymentRepo {
	return &fakeDeploymentRepo{deployments: map[uuid.UUID]*models.Deployment{}}
}

func (r *fakeDeploymentRepo) add(d *models.Deployment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	cp := *d
	r.deployments[d.ID] = &cp
}

func (r *fakeDeploymentRepo) get(id uuid.UUID) *models.Deployment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deployments[id]; ok {
		cp := *d
		return &cp
	}
	return nil
}

func (r *fakeDeploymentRepo) Create(ctx context.Context, obj *models.Deployment) error {
	r.add(obj)
	return nil
}

func (r *fakeDeploymentRepo) GetByID(ctx context.Context, id any, dest *models.Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deployments[id.(uuid.UUID)]
	if !ok {
		return appErr.New(appErr.CodeNotFound, "entity not found")
	}
	*dest = *d
	return nil
}

func (r *fakeDeploymentRepo) Update(ctx context.Context, obj *models.Deployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *obj
	r.deployments[obj.ID] = &cp
	return nil
}

func (r *fakeDeploymentRepo) Delete(ctx context.Context, id any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deployments[id.(uuid.UUID)]; !ok {
		return appErr.New(appErr.CodeNotFound, "entity not found")
	}
	delete(r.deployments, id.(uuid.UUID))
	return nil
}

func (r *fakeDeploymentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Deployment
	for _, d := range r.deployments {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeDeploymentRepo) ListByServer(ctx context.Context, serverID uuid.UUID) ([]models.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Deployment
	for _, d := range r.deployments {
		if d.ServerID == serverID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeDeploymentRepo) ListNonTerminal(ctx context.Context) ([]models.Deployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Deployment
	for _, d := range r.deployments {
		if !models.Terminal(d.Status, d.DesiredState) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeDeploymentRepo) TransitionStatus(ctx context.Context, deploymentID uuid.UUID, from, to models.Status) error {
	if !models.CanTransition(from, to) {
		return appErr.New(appErr.CodeInternal, "illegal deployment status transition")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deployments[deploymentID]
	if !ok || d.Status != from {
		return appErr.New(appErr.CodeConflict, "deployment status changed concurrently")
	}
	d.Status = to
	return nil
}

func (r *fakeDeploymentRepo) setField(deploymentID uuid.UUID, set func(*models.Deployment)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deployments[deploymentID]
	if !ok {
		return appErr.New(appErr.CodeNotFound, "deployment not found")
	}
	set(d)
	return nil
}

func (r *fakeDeploymentRepo) SetDesiredState(ctx context.Context, deploymentID uuid.UUID, desired models.DesiredState) error {
	return r.setField(deploymentID, func(d *models.Deployment) { d.DesiredState = desired })
}

func (r *fakeDeploymentRepo) SetExternalID(ctx context.Context, deploymentID uuid.UUID, externalID string) error {
	return r.setField(deploymentID, func(d *models.Deployment) { d.ExternalID = externalID })
}

func (r *fakeDeploymentRepo) SetLastError(ctx context.Context, deploymentID uuid.UUID, msg string) error {
	return r.setField(deploymentID, func(d *models.Deployment) { d.LastError = msg })
}

func (r *fakeDeploymentRepo) AppendEvent(ctx context.Context, deploymentID uuid.UUID, event models.Event) error {
	return r.setField(deploymentID, func(d *models.Deployment) { d.Events = appendEventJSON(d.Events, event) })
}

type fakeCredRepo struct {
	mu    sync.Mutex
	creds map[uuid.UUID]*models.Credential
}

func newFakeCredRepo() *fakeCredRepo {
	return &fakeCredRepo{creds: map[uuid.UUID]*models.Credential{}}
}

func (r *fakeCredRepo) add(c *models.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	cp := *c
	r.creds[c.ID] = &cp
}

func (r *fakeCredRepo) get(id uuid.UUID) *models.Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.creds[id]; ok {
		cp := *c
		return &cp
	}
	return nil
}

func (r *fakeCredRepo) Create(ctx context.Context, obj *models.Credential) error {
	r.add(obj)
	return nil
}

func (r *fakeCredRepo) GetByID(ctx context.Context, id any, dest *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[id.(uuid.UUID)]
	if !ok {
		return appErr.New(appErr.CodeNotFound, "entity not found")
	}
	*dest = *c
	return nil
}

func (r *fakeCredRepo) Update(ctx context.Context, obj *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *obj
	r.creds[obj.ID] = &cp
	return nil
}

func (r *fakeCredRepo) Delete(ctx context.Context, id any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creds, id.(uuid.UUID))
	return nil
}

func (r *fakeCredRepo) GetByUserProvider(ctx context.Context, userID uuid.UUID, provider string, dest *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.creds {
		if c.UserID == userID && c.Provider == provider {
			*dest = *c
			return nil
		}
	}
	return appErr.New(appErr.CodeNotFound, "credential not found")
}

func (r *fakeCredRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Credential
	for _, c := range r.creds {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeCredRepo) SetValidity(ctx context.Context, credentialID uuid.UUID, valid bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[credentialID]
	if !ok {
		return appErr.New(appErr.CodeNotFound, "credential not found")
	}
	now := time.Now()
	c.Valid = valid
	c.LastCheckedAt = &now
	return nil
}

func (r *fakeCredRepo) DeleteByUserProvider(ctx context.Context, userID uuid.UUID, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.creds {
		if c.UserID == userID && c.Provider == provider {
			delete(r.creds, id)
			return nil
		}
	}
	return appErr.New(appErr.CodeNotFound, "credential not found")
}

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*models.ReconcileTask
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: map[string]*models.ReconcileTask{}}
}

func taskKey(kind models.ResourceKind, resourceID uuid.UUID) string {
	return fmt.Sprintf("%s/%s", kind, resourceID)
}

func (r *fakeTaskRepo) Ensure(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, nextRetryAt time.Time) (*models.ReconcileTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := taskKey(kind, resourceID)
	if t, ok := r.tasks[key]; ok {
		cp := *t
		return &cp, nil
	}
	t := &models.ReconcileTask{
		ID:           uuid.New(),
		ResourceKind: kind,
		ResourceID:   resourceID,
		State:        models.TaskScheduled,
		NextRetryAt:  nextRetryAt,
	}
	r.tasks[key] = t
	cp := *t
	return &cp, nil
}

func (r *fakeTaskRepo) Get(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, dest *models.ReconcileTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskKey(kind, resourceID)]
	if !ok {
		return appErr.New(appErr.CodeNotFound, "reconcile task not found")
	}
	*dest = *t
	return nil
}

func (r *fakeTaskRepo) Claim(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskKey(kind, resourceID)]
	if !ok || t.State != models.TaskScheduled {
		return false, nil
	}
	t.State = models.TaskRunning
	return true, nil
}

func (r *fakeTaskRepo) Release(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, attempts int, nextRetryAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskKey(kind, resourceID)]
	if !ok || t.State != models.TaskRunning {
		return appErr.New(appErr.CodeConflict, "reconcile task not in running state")
	}
	t.State = models.TaskScheduled
	t.Attempts = attempts
	t.NextRetryAt = nextRetryAt
	t.LastError = lastError
	return nil
}

func (r *fakeTaskRepo) Unclaim(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[taskKey(kind, resourceID)]; ok && t.State == models.TaskRunning {
		t.State = models.TaskScheduled
	}
	return nil
}

func (r *fakeTaskRepo) ResetRunning(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.State == models.TaskRunning {
			t.State = models.TaskScheduled
		}
	}
	return nil
}

func (r *fakeTaskRepo) Remove(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskKey(kind, resourceID))
	return nil
}

func (r *fakeTaskRepo) task(kind models.ResourceKind, resourceID uuid.UUID) *models.ReconcileTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[taskKey(kind, resourceID)]; ok {
		cp := *t
		return &cp
	}
	return nil
}

func appendEventJSON(stored datatypes.JSON, event models.Event) datatypes.JSON {
	var events []models.Event
	if len(stored) > 0 {
		_ = json.Unmarshal(stored, &events)
	}
	events = append(events, event)
	b, _ := json.Marshal(events)
	return datatypes.JSON(b)
}

// Provider mocks.

type mockCompute struct {
	mock.Mock
}

func (m *mockCompute) CreateServer(ctx context.Context, spec providers.ServerSpec) (*providers.ServerObservation, error) {
	args := m.Called(ctx, spec)
	if v := args.Get(0); v != nil {
		return v.(*providers.ServerObservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCompute) DescribeServer(ctx context.Context, externalID string) (*providers.ServerObservation, error) {
	args := m.Called(ctx, externalID)
	if v := args.Get(0); v != nil {
		return v.(*providers.ServerObservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCompute) DescribeServerByName(ctx context.Context, name string) (*providers.ServerObservation, error) {
	args := m.Called(ctx, name)
	if v := args.Get(0); v != nil {
		return v.(*providers.ServerObservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCompute) DestroyServer(ctx context.Context, externalID string) error {
	args := m.Called(ctx, externalID)
	return args.Error(0)
}

func (m *mockCompute) Validate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type mockDeploy struct {
	mock.Mock
}

func (m *mockDeploy) CreateApplication(ctx context.Context, spec providers.AppSpec) (*providers.AppObservation, error) {
	args := m.Called(ctx, spec)
	if v := args.Get(0); v != nil {
		return v.(*providers.AppObservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDeploy) DescribeApplication(ctx context.Context, externalID string) (*providers.AppObservation, error) {
	args := m.Called(ctx, externalID)
	if v := args.Get(0); v != nil {
		return v.(*providers.AppObservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDeploy) DestroyApplication(ctx context.Context, externalID string) error {
	args := m.Called(ctx, externalID)
	return args.Error(0)
}

func (m *mockDeploy) Validate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// staticFactory hands back the test's mock adapters regardless of credential.
type staticFactory struct {
	compute providers.ComputeProvider
	deploy  providers.DeployProvider
}

func (f staticFactory) Compute(cred *models.Credential) providers.ComputeProvider { return f.compute }
func (f staticFactory) Deploy(cred *models.Credential) providers.DeployProvider   { return f.deploy }

type enqueueCall struct {
	kind  models.ResourceKind
	id    uuid.UUID
	delay time.Duration
}

// captureEnqueuer records triggers instead of touching a queue.
type captureEnqueuer struct {
	mu    sync.Mutex
	calls []enqueueCall
}

func (e *captureEnqueuer) Enqueue(ctx context.Context, kind models.ResourceKind, resourceID uuid.UUID, delay time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, enqueueCall{kind: kind, id: resourceID, delay: delay})
	return nil
}

func (e *captureEnqueuer) last() *enqueueCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		return nil
	}
	c := e.calls[len(e.calls)-1]
	return &c
}

func (e *captureEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

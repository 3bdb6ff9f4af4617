package http_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mirrorx/vault/internal/models"
	"github.com/mirrorx/vault/internal/realtime"
	handler "github.com/mirrorx/vault/internal/server/handler/http"
	"github.com/mirrorx/vault/internal/service"
	"go.uber.org/zap"
)

type fakeAuthenticator struct{}

func (fakeAuthenticator) Authenticate(_ context.Context, token string) (*models.Session, error) {
	switch token {
	case "t-alice":
		return &models.Session{ID: "s-alice", UserID: "alice"}, nil
	case "t-bob":
		return &models.Session{ID: "s-bob", UserID: "bob"}, nil
	}
	return nil, models.ErrUnauthorized
}

type fakeAuthService struct {
	signedOut string
}

func (f *fakeAuthService) SignUp(_ context.Context, email, password, fullName string) (*models.Profile, error) {
	if email == "taken@example.com" {
		return nil, models.ErrEmailTaken
	}
	return &models.Profile{ID: "u-new", Email: email, FullName: fullName}, nil
}
func (f *fakeAuthService) ResendCode(context.Context, string) error { return nil }
func (f *fakeAuthService) VerifyOTP(_ context.Context, email, code string) (*models.AuthResult, error) {
	if code != "123456" {
		return nil, models.ErrInvalidCode
	}
	return &models.AuthResult{Token: "t-new", Profile: &models.Profile{Email: email}}, nil
}
func (f *fakeAuthService) SignIn(_ context.Context, email, password string) (*models.AuthResult, error) {
	if password != "password1" {
		return nil, models.ErrInvalidCredentials
	}
	return &models.AuthResult{Token: "t-alice", Profile: &models.Profile{ID: "alice", Email: email}}, nil
}
func (f *fakeAuthService) SignOut(_ context.Context, sessionID string) error {
	f.signedOut = sessionID
	return nil
}
func (f *fakeAuthService) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	return &models.Profile{ID: userID, Email: userID + "@example.com"}, nil
}
func (f *fakeAuthService) UpdateProfile(_ context.Context, userID, fullName string) (*models.Profile, error) {
	return &models.Profile{ID: userID, FullName: fullName}, nil
}

// fakeVaultService knows one vault, v1, owned by alice.
type fakeVaultService struct {
	touched bool
}

func (f *fakeVaultService) Authorize(_ context.Context, userID, vaultID string) (*models.Vault, error) {
	if vaultID != "v1" || userID != "alice" {
		return nil, models.ErrNotFound
	}
	return &models.Vault{ID: "v1", UserID: "alice", Name: "Main"}, nil
}
func (f *fakeVaultService) ListVaults(_ context.Context, userID string) ([]*models.Vault, error) {
	if userID != "alice" {
		return nil, nil
	}
	return []*models.Vault{{ID: "v1", UserID: "alice", Name: "Main"}}, nil
}
func (f *fakeVaultService) GetVault(ctx context.Context, userID, vaultID string) (*models.Vault, error) {
	return f.Authorize(ctx, userID, vaultID)
}
func (f *fakeVaultService) CreateVault(_ context.Context, userID, name, _, password string) (*models.Vault, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: vault name is required", models.ErrInvalidInput)
	}
	return &models.Vault{ID: "v2", UserID: userID, Name: name, PasswordProtected: password != ""}, nil
}
func (f *fakeVaultService) UpdateVault(ctx context.Context, userID, vaultID string, patch models.VaultPatch) (*models.Vault, error) {
	v, err := f.Authorize(ctx, userID, vaultID)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		v.Name = *patch.Name
	}
	return v, nil
}
func (f *fakeVaultService) DeleteVault(ctx context.Context, userID, vaultID string) error {
	_, err := f.Authorize(ctx, userID, vaultID)
	return err
}
func (f *fakeVaultService) TouchVault(ctx context.Context, userID, vaultID string) (*models.Vault, error) {
	f.touched = true
	return f.Authorize(ctx, userID, vaultID)
}
func (f *fakeVaultService) UnlockVault(ctx context.Context, userID, vaultID, password string) (*models.Vault, error) {
	if password != "sesame" {
		return nil, models.ErrVaultPassword
	}
	return f.Authorize(ctx, userID, vaultID)
}

// memRecords is an in-memory record service for one kind.
type memRecords[E any, P any] struct {
	mu    sync.Mutex
	items map[string]*E
	seq   int
	setID func(*E, string)
	apply func(*E, P)
}

func (m *memRecords[E, P]) List(context.Context, string) ([]*E, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*E, 0, len(m.items))
	for _, v := range m.items {
		out = append(out, v)
	}
	return out, nil
}

func (m *memRecords[E, P]) Get(_ context.Context, _, id string) (*E, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return v, nil
}

func (m *memRecords[E, P]) Create(_ context.Context, _ string, rec *E) (*E, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("id-%d", m.seq)
	m.setID(rec, id)
	m.items[id] = rec
	return rec, nil
}

func (m *memRecords[E, P]) Update(_ context.Context, _, id string, patch P) (*E, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	m.apply(v, patch)
	return v, nil
}

func (m *memRecords[E, P]) Delete(_ context.Context, _, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func newMemOperations() *memRecords[models.Operation, models.OperationPatch] {
	return &memRecords[models.Operation, models.OperationPatch]{
		items: map[string]*models.Operation{},
		setID: func(o *models.Operation, id string) { o.ID = id },
		apply: func(o *models.Operation, p models.OperationPatch) { o.Apply(p) },
	}
}

type fakeLinkService struct {
	calls []string
}

func (f *fakeLinkService) Link(_ context.Context, vaultID string, a, b models.Ref) error {
	if a.Kind == b.Kind {
		return models.ErrInvalidLink
	}
	f.calls = append(f.calls, "link "+a.String()+" "+b.String())
	return nil
}
func (f *fakeLinkService) Unlink(_ context.Context, vaultID string, a, b models.Ref) error {
	f.calls = append(f.calls, "unlink "+a.String()+" "+b.String())
	return nil
}

type fakeActivity struct {
	limit int
}

func (f *fakeActivity) List(_ context.Context, _ string, limit int) ([]*models.AuditLog, error) {
	f.limit = limit
	return nil, nil
}

type fakeExport struct{}

func (fakeExport) ExportRecord(_ context.Context, _ string, kind models.EntityKind, id string) (*service.Export, error) {
	if id == "missing" {
		return nil, models.ErrNotFound
	}
	return &service.Export{Filename: string(kind) + "-" + id + ".json", Data: []byte(`{"id":"` + id + `"}`)}, nil
}
func (fakeExport) Snapshot(context.Context, string) (*service.SnapshotInfo, error) {
	return nil, models.ErrStorageUnavailable
}
func (fakeExport) ListSnapshots(context.Context, string) ([]service.SnapshotInfo, error) {
	return []service.SnapshotInfo{{Name: "a.json"}}, nil
}
func (fakeExport) DownloadSnapshot(_ context.Context, _, name string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte(`{"vault":{}}`))), nil
}

type fakePipelines struct{}

func (fakePipelines) SetStepCompleted(_ context.Context, _, id string, index int, completed bool) (*models.Pipeline, error) {
	if index > 2 {
		return nil, fmt.Errorf("%w: step %d outside [0, 3)", models.ErrInvalidInput, index)
	}
	return &models.Pipeline{ID: id, StepCount: 3, Steps: map[int]models.PipelineStep{index: {Completed: completed}}}, nil
}
func (fakePipelines) Optimize(_ context.Context, _, id string, iterations int, apply bool) (*service.OptimizeResult, error) {
	return &service.OptimizeResult{Applied: apply, Pipeline: &models.Pipeline{ID: id}}, nil
}

type testServer struct {
	handler http.Handler
	auth    *fakeAuthService
	vaults  *fakeVaultService
	ops     *memRecords[models.Operation, models.OperationPatch]
	links   *fakeLinkService
	act     *fakeActivity
	hub     *realtime.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()
	ts := &testServer{
		auth:   &fakeAuthService{},
		vaults: &fakeVaultService{},
		ops:    newMemOperations(),
		links:  &fakeLinkService{},
		act:    &fakeActivity{},
		hub:    realtime.NewHub(log),
	}
	ts.handler = handler.NewRouter(handler.Handlers{
		Auth:       &handler.AuthHandler{AuthService: ts.auth, Log: log},
		Vaults:     &handler.VaultHandler{VaultService: ts.vaults, Log: log},
		Operations: &handler.RecordHandler[models.Operation, models.OperationPatch]{Service: ts.ops, Log: log},
		Personas: &handler.RecordHandler[models.Persona, models.PersonaPatch]{Service: &memRecords[models.Persona, models.PersonaPatch]{
			items: map[string]*models.Persona{},
			setID: func(p *models.Persona, id string) { p.ID = id },
			apply: func(p *models.Persona, patch models.PersonaPatch) { p.Apply(patch) },
		}, Log: log},
		Pipelines: &handler.RecordHandler[models.Pipeline, models.PipelinePatch]{Service: &memRecords[models.Pipeline, models.PipelinePatch]{
			items: map[string]*models.Pipeline{},
			setID: func(p *models.Pipeline, id string) { p.ID = id },
			apply: func(p *models.Pipeline, patch models.PipelinePatch) { p.Apply(patch) },
		}, Log: log},
		Resources: &handler.RecordHandler[models.Resource, models.ResourcePatch]{Service: &memRecords[models.Resource, models.ResourcePatch]{
			items: map[string]*models.Resource{},
			setID: func(r *models.Resource, id string) { r.ID = id },
			apply: func(r *models.Resource, patch models.ResourcePatch) { r.Apply(patch) },
		}, Log: log},
		Steps:    &handler.PipelineHandler{PipelineService: fakePipelines{}, Log: log},
		Links:    &handler.LinkHandler{LinkService: ts.links, Log: log},
		Activity: &handler.ActivityHandler{ActivityService: ts.act, Log: log},
		Changes:  &handler.ChangesHandler{Hub: ts.hub, Log: log},
		Export:   &handler.ExportHandler{ExportService: fakeExport{}, Log: log},
	}, fakeAuthenticator{}, log)
	return ts
}

func (ts *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

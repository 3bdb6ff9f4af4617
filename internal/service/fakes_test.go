package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mirrorx/vault/internal/models"
)

type fakeTx struct {
	calls int
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

// memLinks keeps link arrays in memory so tests can check both sides.
type memLinks struct {
	mu      sync.Mutex
	records map[models.Ref]map[models.EntityKind][]string
}

func newMemLinks(refs ...models.Ref) *memLinks {
	m := &memLinks{records: make(map[models.Ref]map[models.EntityKind][]string)}
	for _, r := range refs {
		m.records[r] = make(map[models.EntityKind][]string)
	}
	return m
}

func (m *memLinks) set(owner models.Ref, k models.EntityKind, ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[owner] == nil {
		m.records[owner] = make(map[models.EntityKind][]string)
	}
	m.records[owner][k] = ids
}

func (m *memLinks) linked(owner models.Ref, k models.EntityKind) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.records[owner][k]...)
}

func (m *memLinks) Exists(_ context.Context, _ string, ref models.Ref) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[ref]
	return ok, nil
}

func (m *memLinks) AddLink(_ context.Context, _ string, owner, target models.Ref) error {
	if owner.Kind == target.Kind {
		return models.ErrInvalidLink
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[owner]
	if !ok {
		return fmt.Errorf("add link: %w", models.ErrNotFound)
	}
	for _, id := range rec[target.Kind] {
		if id == target.ID {
			return nil
		}
	}
	rec[target.Kind] = append(rec[target.Kind], target.ID)
	return nil
}

func (m *memLinks) RemoveLink(_ context.Context, _ string, owner, target models.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[owner]
	if !ok {
		return fmt.Errorf("remove link: %w", models.ErrNotFound)
	}
	rec[target.Kind] = without(rec[target.Kind], target.ID)
	return nil
}

func (m *memLinks) PurgeReferences(_ context.Context, _ string, target models.Ref) ([]models.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var touched []models.Ref
	for ref, rec := range m.records {
		before := len(rec[target.Kind])
		rec[target.Kind] = without(rec[target.Kind], target.ID)
		if len(rec[target.Kind]) != before {
			touched = append(touched, ref)
		}
	}
	return touched, nil
}

func without(ids []string, id string) []string {
	out := []string{}
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

type mockRecordRepo[T any] struct {
	ListFunc   func(ctx context.Context, vaultID string) ([]T, error)
	GetFunc    func(ctx context.Context, vaultID, id string) (T, error)
	CreateFunc func(ctx context.Context, rec T) (T, error)
	UpdateFunc func(ctx context.Context, rec T) (T, error)
	DeleteFunc func(ctx context.Context, vaultID, id string) error
}

func (m *mockRecordRepo[T]) ListByVault(ctx context.Context, vaultID string) ([]T, error) {
	return m.ListFunc(ctx, vaultID)
}
func (m *mockRecordRepo[T]) Get(ctx context.Context, vaultID, id string) (T, error) {
	return m.GetFunc(ctx, vaultID, id)
}
func (m *mockRecordRepo[T]) Create(ctx context.Context, rec T) (T, error) {
	return m.CreateFunc(ctx, rec)
}
func (m *mockRecordRepo[T]) Update(ctx context.Context, rec T) (T, error) {
	return m.UpdateFunc(ctx, rec)
}
func (m *mockRecordRepo[T]) Delete(ctx context.Context, vaultID, id string) error {
	return m.DeleteFunc(ctx, vaultID, id)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) ofType(t models.ChangeType) []models.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.ChangeEvent
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []models.AuditLog
	err     error
}

func (a *recordingAuditor) Record(_ context.Context, entry *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *entry)
	return a.err
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeListener struct {
	vaultID, table string
	stopped        bool
}

func (l *fakeListener) Listen(vaultID, table string, _ func(models.ChangeEvent)) func() {
	l.vaultID, l.table = vaultID, table
	return func() { l.stopped = true }
}

var errBoom = errors.New("boom")

type testDeps struct {
	tx    *fakeTx
	links *memLinks
	pub   *recordingPublisher
	audit *recordingAuditor
}

func newTestDeps(refs ...models.Ref) (testDeps, Deps) {
	td := testDeps{
		tx:    &fakeTx{},
		links: newMemLinks(refs...),
		pub:   &recordingPublisher{},
		audit: &recordingAuditor{},
	}
	return td, Deps{Tx: td.tx, Links: td.links, Publisher: td.pub, Audit: td.audit}
}

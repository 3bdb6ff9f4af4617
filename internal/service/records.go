package service

import (
	"context"

	"github.com/mirrorx/vault/internal/models"
	"go.uber.org/zap"
)

// RecordRepository is the storage surface of one linkable record kind.
type RecordRepository[T any] interface {
	ListByVault(ctx context.Context, vaultID string) ([]T, error)
	Get(ctx context.Context, vaultID, id string) (T, error)
	Create(ctx context.Context, rec T) (T, error)
	Update(ctx context.Context, rec T) (T, error)
	Delete(ctx context.Context, vaultID, id string) error
}

// Record is the behaviour shared by the four record kinds.
type Record[P any] interface {
	models.Linkable
	Normalize() error
	Apply(patch P)
}

// Records implements list/get/create/update/delete for one record kind,
// maintaining reciprocal links and emitting change events.
type Records[T Record[P], P any] struct {
	kind     models.EntityKind
	repo     RecordRepository[T]
	tx       TxRunner
	links    LinkRepository
	listener ChangeListener
	events   *notifier
	log      *zap.Logger
}

func newRecords[T Record[P], P any](kind models.EntityKind, repo RecordRepository[T], d Deps) *Records[T, P] {
	n := d.notifier()
	return &Records[T, P]{
		kind:     kind,
		repo:     repo,
		tx:       d.Tx,
		links:    d.Links,
		listener: d.Listener,
		events:   n,
		log:      n.log.With(zap.String("kind", string(kind))),
	}
}

// List returns the vault's records, newest first.
func (r *Records[T, P]) List(ctx context.Context, vaultID string) ([]T, error) {
	return r.repo.ListByVault(ctx, vaultID)
}

// Get returns one record.
func (r *Records[T, P]) Get(ctx context.Context, vaultID, id string) (T, error) {
	return r.repo.Get(ctx, vaultID, id)
}

// Create stores rec and adds it to the arrays of every record it links to.
// The caller sets the record's vault id.
func (r *Records[T, P]) Create(ctx context.Context, vaultID string, rec T) (T, error) {
	var zero T
	if err := rec.Normalize(); err != nil {
		return zero, err
	}

	var (
		created T
		touched []models.Ref
	)
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if created, err = r.repo.Create(ctx, rec); err != nil {
			return err
		}
		touched, err = syncLinks(ctx, r.links, vaultID, created, nil)
		return err
	})
	if err != nil {
		return zero, err
	}

	id := created.Ref().ID
	r.events.changed(ctx, vaultID, r.kind, models.ChangeInsert, id, created)
	r.events.touched(ctx, vaultID, touched)
	r.events.record(ctx, models.AuditLog{VaultID: vaultID, Action: models.ActionCreate, EntityKind: string(r.kind), EntityID: id})
	r.log.Debug("record created", zap.String("vault_id", vaultID), zap.String("id", id))
	return created, nil
}

// Update applies patch to the record. Link arrays present in the patch are
// diffed against the stored ones and the reciprocal arrays follow.
func (r *Records[T, P]) Update(ctx context.Context, vaultID, id string, patch P) (T, error) {
	return r.mutate(ctx, vaultID, id, func(rec T) error {
		rec.Apply(patch)
		return nil
	})
}

// mutate loads the record under a row lock, lets fn change it and writes it
// back together with any reciprocal link changes.
func (r *Records[T, P]) mutate(ctx context.Context, vaultID, id string, fn func(rec T) error) (T, error) {
	var (
		zero    T
		updated T
		touched []models.Ref
	)
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		rec, err := r.repo.Get(ctx, vaultID, id)
		if err != nil {
			return err
		}
		prev := linkSnapshot(rec)
		if err := fn(rec); err != nil {
			return err
		}
		if err := rec.Normalize(); err != nil {
			return err
		}
		if touched, err = syncLinks(ctx, r.links, vaultID, rec, prev); err != nil {
			return err
		}
		updated, err = r.repo.Update(ctx, rec)
		return err
	})
	if err != nil {
		return zero, err
	}

	r.events.changed(ctx, vaultID, r.kind, models.ChangeUpdate, id, updated)
	r.events.touched(ctx, vaultID, touched)
	r.events.record(ctx, models.AuditLog{VaultID: vaultID, Action: models.ActionUpdate, EntityKind: string(r.kind), EntityID: id})
	return updated, nil
}

// Delete removes the record and scrubs its id from every other record's arrays.
func (r *Records[T, P]) Delete(ctx context.Context, vaultID, id string) error {
	self := models.Ref{Kind: r.kind, ID: id}
	var touched []models.Ref
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := r.repo.Get(ctx, vaultID, id); err != nil {
			return err
		}
		var err error
		if touched, err = r.links.PurgeReferences(ctx, vaultID, self); err != nil {
			return err
		}
		return r.repo.Delete(ctx, vaultID, id)
	})
	if err != nil {
		return err
	}

	r.events.changed(ctx, vaultID, r.kind, models.ChangeDelete, id, nil)
	r.events.touched(ctx, vaultID, touched)
	r.events.record(ctx, models.AuditLog{VaultID: vaultID, Action: models.ActionDelete, EntityKind: string(r.kind), EntityID: id})
	r.log.Debug("record deleted", zap.String("vault_id", vaultID), zap.String("id", id), zap.Int("references_purged", len(touched)))
	return nil
}

// Subscribe calls fn for every change to this kind's table in the vault
// until the returned function is called.
func (r *Records[T, P]) Subscribe(vaultID string, fn func(models.ChangeEvent)) (unsubscribe func()) {
	if r.listener == nil {
		return func() {}
	}
	return r.listener.Listen(vaultID, r.kind.Table(), fn)
}

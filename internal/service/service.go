// Package service implements the vault business logic: record CRUD with
// bidirectional link maintenance, vault ownership, authentication, the
// activity trail, exports and the pipeline optimizer.
package service

import (
	"context"
	"time"

	"github.com/mirrorx/vault/internal/models"
	"go.uber.org/zap"
)

// TxRunner runs fn inside a transaction carried by the context passed to it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LinkRepository maintains the back-reference arrays between records.
type LinkRepository interface {
	// Exists reports whether ref names a record in the vault.
	Exists(ctx context.Context, vaultID string, ref models.Ref) (bool, error)
	// AddLink stores target.ID in owner's array for target's kind, once.
	AddLink(ctx context.Context, vaultID string, owner, target models.Ref) error
	// RemoveLink drops target.ID from owner's array for target's kind.
	RemoveLink(ctx context.Context, vaultID string, owner, target models.Ref) error
	// PurgeReferences drops target.ID from every array in the vault and
	// returns the records that referenced it.
	PurgeReferences(ctx context.Context, vaultID string, target models.Ref) ([]models.Ref, error)
}

// Publisher delivers change events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev models.ChangeEvent) error
}

// ChangeListener registers push-based listeners for one table of a vault.
type ChangeListener interface {
	Listen(vaultID, table string, fn func(models.ChangeEvent)) (unsubscribe func())
}

// Auditor appends entries to the activity trail.
type Auditor interface {
	Record(ctx context.Context, entry *models.AuditLog) error
}

// Deps bundles the collaborators shared by the record services.
type Deps struct {
	Tx        TxRunner
	Links     LinkRepository
	Publisher Publisher
	Listener  ChangeListener
	Audit     Auditor
	Log       *zap.Logger
}

func (d Deps) notifier() *notifier {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &notifier{pub: d.Publisher, audit: d.Audit, log: log, now: time.Now}
}

// notifier emits change events and audit entries after a commit. Its
// failures are logged and never surface to the caller.
type notifier struct {
	pub   Publisher
	audit Auditor
	log   *zap.Logger
	now   func() time.Time
}

func (n *notifier) changed(ctx context.Context, vaultID string, kind models.EntityKind, typ models.ChangeType, id string, record any) {
	n.publish(ctx, models.ChangeEvent{
		Table:    kind.Table(),
		Type:     typ,
		VaultID:  vaultID,
		RecordID: id,
		Record:   record,
		At:       n.now().UTC(),
	})
}

// touched announces reciprocal array updates on other records.
func (n *notifier) touched(ctx context.Context, vaultID string, refs []models.Ref) {
	for _, ref := range refs {
		n.changed(ctx, vaultID, ref.Kind, models.ChangeUpdate, ref.ID, nil)
	}
}

func (n *notifier) publish(ctx context.Context, ev models.ChangeEvent) {
	if n.pub == nil {
		return
	}
	if err := n.pub.Publish(ctx, ev); err != nil {
		n.log.Warn("publish change event",
			zap.String("vault_id", ev.VaultID),
			zap.String("table", ev.Table),
			zap.String("record_id", ev.RecordID),
			zap.Error(err))
	}
}

func (n *notifier) record(ctx context.Context, entry models.AuditLog) {
	if n.audit == nil {
		return
	}
	if entry.UserID == "" {
		entry.UserID = models.UserIDFromContext(ctx)
	}
	if err := n.audit.Record(ctx, &entry); err != nil {
		n.log.Warn("record audit entry",
			zap.String("action", entry.Action),
			zap.String("vault_id", entry.VaultID),
			zap.Error(err))
	}
}

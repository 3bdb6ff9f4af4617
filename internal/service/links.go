package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mirrorx/vault/internal/models"
	"go.uber.org/zap"
)

// LinkService connects and disconnects pairs of records, keeping both
// sides' back-reference arrays consistent inside one transaction.
type LinkService struct {
	tx     TxRunner
	links  LinkRepository
	events *notifier
	log    *zap.Logger
}

// NewLinkService creates a LinkService.
func NewLinkService(d Deps) *LinkService {
	n := d.notifier()
	return &LinkService{tx: d.Tx, links: d.Links, events: n, log: n.log}
}

// Link records a in b's array and b in a's array. Linking an already linked
// pair changes nothing.
func (s *LinkService) Link(ctx context.Context, vaultID string, a, b models.Ref) error {
	if err := checkPair(a, b); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.mustExist(ctx, vaultID, a, b); err != nil {
			return err
		}
		if err := s.links.AddLink(ctx, vaultID, a, b); err != nil {
			return err
		}
		return s.links.AddLink(ctx, vaultID, b, a)
	})
	if err != nil {
		return err
	}
	s.afterPair(ctx, vaultID, models.ActionLink, a, b)
	return nil
}

// Unlink removes a and b from each other's arrays. Unlinking a pair that is
// not linked changes nothing.
func (s *LinkService) Unlink(ctx context.Context, vaultID string, a, b models.Ref) error {
	if err := checkPair(a, b); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.mustExist(ctx, vaultID, a, b); err != nil {
			return err
		}
		if err := s.links.RemoveLink(ctx, vaultID, a, b); err != nil {
			return err
		}
		return s.links.RemoveLink(ctx, vaultID, b, a)
	})
	if err != nil {
		return err
	}
	s.afterPair(ctx, vaultID, models.ActionUnlink, a, b)
	return nil
}

// PurgeReferences removes target from every array in the vault that can
// reference its kind.
func (s *LinkService) PurgeReferences(ctx context.Context, vaultID string, target models.Ref) ([]models.Ref, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	var touched []models.Ref
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		touched, err = s.links.PurgeReferences(ctx, vaultID, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.events.touched(ctx, vaultID, touched)
	return touched, nil
}

func (s *LinkService) mustExist(ctx context.Context, vaultID string, refs ...models.Ref) error {
	for _, ref := range refs {
		ok, err := s.links.Exists(ctx, vaultID, ref)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s %s: %w", ref.Kind, ref.ID, models.ErrNotFound)
		}
	}
	return nil
}

func (s *LinkService) afterPair(ctx context.Context, vaultID, action string, a, b models.Ref) {
	s.events.touched(ctx, vaultID, []models.Ref{a, b})
	s.events.record(ctx, models.AuditLog{
		VaultID:    vaultID,
		Action:     action,
		EntityKind: string(a.Kind),
		EntityID:   a.ID,
		Details:    map[string]any{"targetKind": string(b.Kind), "targetId": b.ID},
	})
	s.log.Debug("link updated",
		zap.String("action", action),
		zap.String("vault_id", vaultID),
		zap.Stringer("a", a),
		zap.Stringer("b", b))
}

func checkPair(a, b models.Ref) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if a.Kind == b.Kind {
		return fmt.Errorf("%w: cannot link two %s records", models.ErrInvalidLink, a.Kind)
	}
	return nil
}

// linkSnapshot copies rec's link arrays so they survive a patch.
func linkSnapshot(rec models.Linkable) map[models.EntityKind][]string {
	out := make(map[models.EntityKind][]string, len(models.Kinds))
	for _, k := range models.Kinds {
		out[k] = append([]string(nil), rec.Linked(k)...)
	}
	return out
}

// syncLinks makes the records named in rec's arrays point back at rec.
// prev holds the arrays before the change; nil means rec is new. Targets
// added must exist in the vault. It returns the records it updated.
func syncLinks(ctx context.Context, links LinkRepository, vaultID string, rec models.Linkable, prev map[models.EntityKind][]string) ([]models.Ref, error) {
	self := rec.Ref()
	var touched []models.Ref
	for _, k := range models.Kinds {
		if k == self.Kind {
			continue
		}
		added, removed := models.DiffIDs(prev[k], rec.Linked(k))
		for _, id := range added {
			target := models.Ref{Kind: k, ID: id}
			if err := links.AddLink(ctx, vaultID, target, self); err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return nil, fmt.Errorf("%w: %s %s not found in vault", models.ErrInvalidLink, k, id)
				}
				return nil, err
			}
			touched = append(touched, target)
		}
		for _, id := range removed {
			target := models.Ref{Kind: k, ID: id}
			// A missing target has nothing left to clean up.
			if err := links.RemoveLink(ctx, vaultID, target, self); err != nil && !errors.Is(err, models.ErrNotFound) {
				return nil, err
			}
			touched = append(touched, target)
		}
	}
	return touched, nil
}

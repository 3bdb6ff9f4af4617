package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mirrorx/vault/internal/models"
)

// Activity list bounds.
const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 500
)

// AuditRepository persists the activity trail.
type AuditRepository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	ListByVault(ctx context.Context, vaultID string, limit int) ([]*models.AuditLog, error)
}

// ActivityService records and lists audit entries.
type ActivityService struct {
	repo AuditRepository
}

// NewActivityService creates an ActivityService on repo.
func NewActivityService(repo AuditRepository) *ActivityService {
	return &ActivityService{repo: repo}
}

// Record appends entry to the trail, taking the user from ctx when unset.
func (s *ActivityService) Record(ctx context.Context, entry *models.AuditLog) error {
	if strings.TrimSpace(entry.Action) == "" {
		return fmt.Errorf("%w: audit action is required", models.ErrInvalidInput)
	}
	if entry.UserID == "" {
		entry.UserID = models.UserIDFromContext(ctx)
	}
	return s.repo.Insert(ctx, entry)
}

// List returns the vault's most recent entries. A limit outside
// (0, MaxActivityLimit] is clamped.
func (s *ActivityService) List(ctx context.Context, vaultID string, limit int) ([]*models.AuditLog, error) {
	switch {
	case limit <= 0:
		limit = DefaultActivityLimit
	case limit > MaxActivityLimit:
		limit = MaxActivityLimit
	}
	return s.repo.ListByVault(ctx, vaultID, limit)
}

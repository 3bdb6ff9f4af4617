package service

import (
	"context"

	"github.com/mirrorx/vault/internal/models"
)

// ResourcesService manages the resources of a vault.
type ResourcesService struct {
	*Records[*models.Resource, models.ResourcePatch]
}

// NewResourcesService creates a ResourcesService on repo.
func NewResourcesService(repo RecordRepository[*models.Resource], d Deps) *ResourcesService {
	return &ResourcesService{Records: newRecords[*models.Resource, models.ResourcePatch](models.KindResource, repo, d)}
}

// Create stores a new resource in the vault.
func (s *ResourcesService) Create(ctx context.Context, vaultID string, res *models.Resource) (*models.Resource, error) {
	res.ID, res.VaultID = "", vaultID
	return s.Records.Create(ctx, vaultID, res)
}

// SubscribeToResourceChanges calls fn for every resource change in the vault.
func (s *ResourcesService) SubscribeToResourceChanges(vaultID string, fn func(models.ChangeEvent)) (unsubscribe func()) {
	return s.Subscribe(vaultID, fn)
}

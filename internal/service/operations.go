package service

import (
	"context"

	"github.com/mirrorx/vault/internal/models"
)

// OperationsService manages the operations of a vault.
type OperationsService struct {
	*Records[*models.Operation, models.OperationPatch]
}

// NewOperationsService creates an OperationsService on repo.
func NewOperationsService(repo RecordRepository[*models.Operation], d Deps) *OperationsService {
	return &OperationsService{Records: newRecords[*models.Operation, models.OperationPatch](models.KindOperation, repo, d)}
}

// Create stores a new operation in the vault.
func (s *OperationsService) Create(ctx context.Context, vaultID string, op *models.Operation) (*models.Operation, error) {
	op.ID, op.VaultID = "", vaultID
	return s.Records.Create(ctx, vaultID, op)
}

// SubscribeToOperationChanges calls fn for every operation change in the vault.
func (s *OperationsService) SubscribeToOperationChanges(vaultID string, fn func(models.ChangeEvent)) (unsubscribe func()) {
	return s.Subscribe(vaultID, fn)
}

package service

import (
	"context"

	"github.com/mirrorx/vault/internal/models"
)

// PersonasService manages the personas of a vault.
type PersonasService struct {
	*Records[*models.Persona, models.PersonaPatch]
}

// NewPersonasService creates a PersonasService on repo.
func NewPersonasService(repo RecordRepository[*models.Persona], d Deps) *PersonasService {
	return &PersonasService{Records: newRecords[*models.Persona, models.PersonaPatch](models.KindPersona, repo, d)}
}

// Create stores a new persona in the vault.
func (s *PersonasService) Create(ctx context.Context, vaultID string, p *models.Persona) (*models.Persona, error) {
	p.ID, p.VaultID = "", vaultID
	return s.Records.Create(ctx, vaultID, p)
}

// SubscribeToPersonaChanges calls fn for every persona change in the vault.
func (s *PersonasService) SubscribeToPersonaChanges(vaultID string, fn func(models.ChangeEvent)) (unsubscribe func()) {
	return s.Subscribe(vaultID, fn)
}

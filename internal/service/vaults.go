package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mirrorx/vault/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const vaultsTable = "vaults"

// VaultRepository persists vaults.
type VaultRepository interface {
	Create(ctx context.Context, v *models.Vault) (*models.Vault, error)
	Get(ctx context.Context, id string) (*models.Vault, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Vault, error)
	Update(ctx context.Context, v *models.Vault) (*models.Vault, error)
	Delete(ctx context.Context, id string) error
	Touch(ctx context.Context, id string) (time.Time, error)
}

// VaultService manages a user's vaults. Every call that names a vault
// checks that the caller owns it; foreign vaults look like missing ones.
type VaultService struct {
	repo       VaultRepository
	events     *notifier
	log        *zap.Logger
	bcryptCost int
}

// NewVaultService creates a VaultService on repo.
func NewVaultService(repo VaultRepository, d Deps) *VaultService {
	n := d.notifier()
	return &VaultService{repo: repo, events: n, log: n.log, bcryptCost: bcrypt.DefaultCost}
}

// ListVaults returns the user's vaults, newest first.
func (s *VaultService) ListVaults(ctx context.Context, userID string) ([]*models.Vault, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Authorize returns the vault when userID owns it and ErrNotFound otherwise.
func (s *VaultService) Authorize(ctx context.Context, userID, vaultID string) (*models.Vault, error) {
	v, err := s.repo.Get(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if userID == "" || v.UserID != userID {
		return nil, fmt.Errorf("vault %s: %w", vaultID, models.ErrNotFound)
	}
	return v, nil
}

// GetVault returns one of the user's vaults.
func (s *VaultService) GetVault(ctx context.Context, userID, vaultID string) (*models.Vault, error) {
	return s.Authorize(ctx, userID, vaultID)
}

// CreateVault creates a vault. A non-empty password protects it.
func (s *VaultService) CreateVault(ctx context.Context, userID, name, description, password string) (*models.Vault, error) {
	v := &models.Vault{
		UserID:      userID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
	}
	if v.Name == "" {
		return nil, fmt.Errorf("%w: vault name is required", models.ErrInvalidInput)
	}
	if err := s.setPassword(v, password); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, v)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.ChangeInsert, models.ActionCreate, created)
	s.log.Info("vault created", zap.String("vault_id", created.ID), zap.String("user_id", userID))
	return created, nil
}

// UpdateVault applies patch. An empty password removes protection.
func (s *VaultService) UpdateVault(ctx context.Context, userID, vaultID string, patch models.VaultPatch) (*models.Vault, error) {
	v, err := s.Authorize(ctx, userID, vaultID)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		v.Name = strings.TrimSpace(*patch.Name)
		if v.Name == "" {
			return nil, fmt.Errorf("%w: vault name is required", models.ErrInvalidInput)
		}
	}
	if patch.Description != nil {
		v.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Password != nil {
		if err := s.setPassword(v, *patch.Password); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.Update(ctx, v)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, models.ChangeUpdate, models.ActionUpdate, updated)
	return updated, nil
}

// DeleteVault removes the vault and every record in it.
func (s *VaultService) DeleteVault(ctx context.Context, userID, vaultID string) error {
	v, err := s.Authorize(ctx, userID, vaultID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, vaultID); err != nil {
		return err
	}
	s.emit(ctx, models.ChangeDelete, models.ActionDelete, v)
	s.log.Info("vault deleted", zap.String("vault_id", vaultID), zap.String("user_id", userID))
	return nil
}

// TouchVault stamps the vault's last access time.
func (s *VaultService) TouchVault(ctx context.Context, userID, vaultID string) (*models.Vault, error) {
	v, err := s.Authorize(ctx, userID, vaultID)
	if err != nil {
		return nil, err
	}
	at, err := s.repo.Touch(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	v.LastAccessedAt = &at
	return v, nil
}

// UnlockVault checks password against a protected vault. Unprotected vaults
// always unlock.
func (s *VaultService) UnlockVault(ctx context.Context, userID, vaultID, password string) (*models.Vault, error) {
	v, err := s.Authorize(ctx, userID, vaultID)
	if err != nil {
		return nil, err
	}
	if !v.PasswordProtected {
		return v, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(v.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, models.ErrVaultPassword
		}
		return nil, fmt.Errorf("compare vault password: %w", err)
	}
	return v, nil
}

func (s *VaultService) setPassword(v *models.Vault, password string) error {
	if password == "" {
		v.PasswordProtected, v.PasswordHash = false, ""
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	v.PasswordProtected, v.PasswordHash = true, string(hash)
	return nil
}

func (s *VaultService) emit(ctx context.Context, typ models.ChangeType, action string, v *models.Vault) {
	s.events.publish(ctx, models.ChangeEvent{
		Table:    vaultsTable,
		Type:     typ,
		VaultID:  v.ID,
		RecordID: v.ID,
		Record:   v,
		At:       s.events.now().UTC(),
	})
	s.events.record(ctx, models.AuditLog{
		UserID:     v.UserID,
		VaultID:    v.ID,
		Action:     action,
		EntityKind: "vault",
		EntityID:   v.ID,
	})
}

package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mirrorx/vault/internal/middleware"
	"github.com/mirrorx/vault/internal/models"
	"go.uber.org/zap"
)

// VaultService defines the vault operations required by the HTTP handlers.
type VaultService interface {
	ListVaults(ctx context.Context, userID string) ([]*models.Vault, error)
	GetVault(ctx context.Context, userID, vaultID string) (*models.Vault, error)
	CreateVault(ctx context.Context, userID, name, description, password string) (*models.Vault, error)
	UpdateVault(ctx context.Context, userID, vaultID string, patch models.VaultPatch) (*models.Vault, error)
	DeleteVault(ctx context.Context, userID, vaultID string) error
	TouchVault(ctx context.Context, userID, vaultID string) (*models.Vault, error)
	UnlockVault(ctx context.Context, userID, vaultID, password string) (*models.Vault, error)
	Authorize(ctx context.Context, userID, vaultID string) (*models.Vault, error)
}

// VaultHandler serves the user's vaults.
type VaultHandler struct {
	VaultService VaultService
	Log          *zap.Logger
}

// CreateVaultRequest is the JSON payload of POST /api/vaults.
type CreateVaultRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Password    string `json:"password"`
}

func vaultID(r *http.Request) string {
	return chi.URLParam(r, "vaultID")
}

func userID(r *http.Request) string {
	return middleware.GetUserIDFromContext(r.Context())
}

// RequireOwner rejects requests for vaults the caller does not own. Foreign
// vaults answer 404 like missing ones.
func (h *VaultHandler) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.VaultService.Authorize(r.Context(), userID(r), vaultID(r)); err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// List returns the caller's vaults.
func (h *VaultHandler) List(w http.ResponseWriter, r *http.Request) {
	vaults, err := h.VaultService.ListVaults(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if vaults == nil {
		vaults = []*models.Vault{}
	}
	writeJSON(w, http.StatusOK, vaults)
}

// Create creates a vault.
func (h *VaultHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateVaultRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	v, err := h.VaultService.CreateVault(r.Context(), userID(r), req.Name, req.Description, req.Password)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// Get returns one vault.
func (h *VaultHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.VaultService.GetVault(r.Context(), userID(r), vaultID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Update applies a partial update to a vault.
func (h *VaultHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch models.VaultPatch
	if !decodeJSON(w, r, &patch, false) {
		return
	}
	v, err := h.VaultService.UpdateVault(r.Context(), userID(r), vaultID(r), patch)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Delete removes a vault and everything in it.
func (h *VaultHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.VaultService.DeleteVault(r.Context(), userID(r), vaultID(r)); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Access stamps the vault's last access time.
func (h *VaultHandler) Access(w http.ResponseWriter, r *http.Request) {
	v, err := h.VaultService.TouchVault(r.Context(), userID(r), vaultID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Unlock checks a vault password.
func (h *VaultHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req, true) {
		return
	}
	v, err := h.VaultService.UnlockVault(r.Context(), userID(r), vaultID(r), req.Password)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unlocked": true, "vault": v})
}

package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mirrorx/vault/internal/models"
	"go.uber.org/zap"
)

// ActivityService lists the audit trail of a vault.
type ActivityService interface {
	List(ctx context.Context, vaultID string, limit int) ([]*models.AuditLog, error)
}

// ActivityHandler serves the vault activity feed.
type ActivityHandler struct {
	ActivityService ActivityService
	Log             *zap.Logger
}

// List returns recent activity. The optional limit query parameter bounds
// the number of entries.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := h.ActivityService.List(r.Context(), vaultID(r), limit)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditLog{}
	}
	writeJSON(w, http.StatusOK, entries)
}

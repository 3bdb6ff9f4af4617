package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mirrorx/vault/internal/models"
	"github.com/mirrorx/vault/internal/service"
	"go.uber.org/zap"
)

// ExportService defines record export and vault snapshot operations.
type ExportService interface {
	ExportRecord(ctx context.Context, vaultID string, kind models.EntityKind, id string) (*service.Export, error)
	Snapshot(ctx context.Context, vaultID string) (*service.SnapshotInfo, error)
	ListSnapshots(ctx context.Context, vaultID string) ([]service.SnapshotInfo, error)
	DownloadSnapshot(ctx context.Context, vaultID, name string) (io.ReadCloser, error)
}

// ExportHandler serves record downloads and vault snapshots.
type ExportHandler struct {
	ExportService ExportService
	Log           *zap.Logger
}

func attachment(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

// Record returns a handler that downloads one record of kind as JSON.
func (h *ExportHandler) Record(kind models.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		exp, err := h.ExportService.ExportRecord(r.Context(), vaultID(r), kind, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		attachment(w, exp.Filename)
		w.Header().Set("Content-Length", strconv.Itoa(len(exp.Data)))
		_, _ = w.Write(exp.Data)
	}
}

// CreateSnapshot stores the vault's current contents.
func (h *ExportHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	info, err := h.ExportService.Snapshot(r.Context(), vaultID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// ListSnapshots lists the vault's stored snapshots.
func (h *ExportHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	list, err := h.ExportService.ListSnapshots(r.Context(), vaultID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// DownloadSnapshot streams a stored snapshot.
func (h *ExportHandler) DownloadSnapshot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rc, err := h.ExportService.DownloadSnapshot(r.Context(), vaultID(r), name)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	defer rc.Close()

	attachment(w, name)
	if _, err := io.Copy(w, rc); err != nil && h.Log != nil {
		h.Log.Warn("snapshot download interrupted", zap.String("name", name), zap.Error(err))
	}
}

package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RecordService defines the CRUD operations of one record kind.
type RecordService[E any, P any] interface {
	List(ctx context.Context, vaultID string) ([]*E, error)
	Get(ctx context.Context, vaultID, id string) (*E, error)
	Create(ctx context.Context, vaultID string, rec *E) (*E, error)
	Update(ctx context.Context, vaultID, id string, patch P) (*E, error)
	Delete(ctx context.Context, vaultID, id string) error
}

// RecordHandler serves list/get/create/update/delete for one record kind.
type RecordHandler[E any, P any] struct {
	Service RecordService[E, P]
	Log     *zap.Logger
}

// Mount registers the handler's routes on r, relative to the kind's path.
func (h *RecordHandler[E, P]) Mount(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// List returns the vault's records, newest first.
func (h *RecordHandler[E, P]) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Service.List(r.Context(), vaultID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if recs == nil {
		recs = []*E{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// Get returns one record.
func (h *RecordHandler[E, P]) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Get(r.Context(), vaultID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Create stores a new record.
func (h *RecordHandler[E, P]) Create(w http.ResponseWriter, r *http.Request) {
	rec := new(E)
	if !decodeJSON(w, r, rec, false) {
		return
	}
	created, err := h.Service.Create(r.Context(), vaultID(r), rec)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update applies a partial update.
func (h *RecordHandler[E, P]) Update(w http.ResponseWriter, r *http.Request) {
	var patch P
	if !decodeJSON(w, r, &patch, false) {
		return
	}
	updated, err := h.Service.Update(r.Context(), vaultID(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a record.
func (h *RecordHandler[E, P]) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), vaultID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

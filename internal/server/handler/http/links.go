package http

import (
	"context"
	"net/http"

	"github.com/mirrorx/vault/internal/models"
	"go.uber.org/zap"
)

// LinkService defines the link operations required by LinkHandler.
type LinkService interface {
	Link(ctx context.Context, vaultID string, a, b models.Ref) error
	Unlink(ctx context.Context, vaultID string, a, b models.Ref) error
}

// LinkHandler connects and disconnects records.
type LinkHandler struct {
	LinkService LinkService
	Log         *zap.Logger
}

type refPayload struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// LinkRequest names the two records to (un)link. Kinds may be singular or plural.
type LinkRequest struct {
	Source refPayload `json:"source"`
	Target refPayload `json:"target"`
}

func (req LinkRequest) refs() (models.Ref, models.Ref, error) {
	sk, err := models.ParseEntityKind(req.Source.Kind)
	if err != nil {
		return models.Ref{}, models.Ref{}, err
	}
	tk, err := models.ParseEntityKind(req.Target.Kind)
	if err != nil {
		return models.Ref{}, models.Ref{}, err
	}
	return models.Ref{Kind: sk, ID: req.Source.ID}, models.Ref{Kind: tk, ID: req.Target.ID}, nil
}

// Link connects two records.
func (h *LinkHandler) Link(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.LinkService.Link)
}

// Unlink disconnects two records.
func (h *LinkHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.LinkService.Unlink)
}

func (h *LinkHandler) handle(w http.ResponseWriter, r *http.Request, op func(context.Context, string, models.Ref, models.Ref) error) {
	var req LinkRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	a, b, err := req.refs()
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if err := op(r.Context(), vaultID(r), a, b); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

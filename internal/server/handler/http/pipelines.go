package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mirrorx/vault/internal/models"
	"github.com/mirrorx/vault/internal/service"
	"go.uber.org/zap"
)

// PipelineService defines the pipeline-specific operations.
type PipelineService interface {
	SetStepCompleted(ctx context.Context, vaultID, id string, index int, completed bool) (*models.Pipeline, error)
	Optimize(ctx context.Context, vaultID, id string, iterations int, apply bool) (*service.OptimizeResult, error)
}

// PipelineHandler serves step completion and optimization.
type PipelineHandler struct {
	PipelineService PipelineService
	Log             *zap.Logger
}

// OptimizeRequest is the optional JSON payload of POST .../optimize.
type OptimizeRequest struct {
	Iterations int  `json:"iterations"`
	Apply      bool `json:"apply"`
}

// SetStep marks a step completed or not.
func (h *PipelineHandler) SetStep(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		badRequest(w, "invalid step index")
		return
	}
	var req struct {
		Completed bool `json:"completed"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}
	p, err := h.PipelineService.SetStepCompleted(r.Context(), vaultID(r), chi.URLParam(r, "id"), index, req.Completed)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Optimize runs the optimizer over a pipeline. Progress is published on the
// vault's change stream while the request is in flight.
func (h *PipelineHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	res, err := h.PipelineService.Optimize(r.Context(), vaultID(r), chi.URLParam(r, "id"), req.Iterations, req.Apply)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

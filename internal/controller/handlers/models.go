package handlers

import (
	"errors"
	"net/http"

	"spinframe/internal/catalog"
	"spinframe/internal/sequence"
	"spinframe/pkg/api"
)

// ListModels handles GET /models.
// Each model is reported with the availability of its sequence per material.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.inventory.ListModels(r.Context())
	if err != nil {
		h.log(r).Error("list models failed", "error", err)
		h.httpError(w, "Failed to list models", http.StatusInternalServerError)
		return
	}

	resp := api.ModelListResponse{Models: make([]api.ModelResponse, 0, len(models))}
	for _, m := range models {
		mr := api.ModelResponse{
			ID:        m.ID,
			Name:      m.Name,
			File:      m.File,
			Materials: m.Materials,
			Sequences: make([]api.SequenceAvailability, 0, len(m.Sequences)),
		}
		for _, s := range m.Sequences {
			mr.Sequences = append(mr.Sequences, api.SequenceAvailability{
				Material:    s.Material,
				Complete:    s.Complete,
				FrameCount:  s.FrameCount,
				Formats:     s.Formats,
				GeneratedAt: s.GeneratedAt,
			})
		}
		resp.Models = append(resp.Models, mr)
	}
	h.respondJson(w, http.StatusOK, resp)
}

// DeleteModel handles DELETE /models/{id}.
// The model leaves the catalog and its sequences are removed for every known material.
func (h *Handlers) DeleteModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !sequence.ValidID(id) {
		h.httpError(w, "Invalid model id", http.StatusBadRequest)
		return
	}

	removed, err := h.inventory.DeleteModel(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrModelNotFound) {
			h.httpError(w, "Model not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, catalog.ErrModelInUse) {
			h.httpError(w, "Model is referenced by an unfinished job", http.StatusConflict)
			return
		}
		h.log(r).Error("delete model failed", "model", id, "error", err)
		h.httpError(w, "Failed to delete model", http.StatusInternalServerError)
		return
	}

	if removed == nil {
		removed = []string{}
	}
	h.log(r).Info("model deleted", "model", id, "sequences", len(removed))
	h.respondJson(w, http.StatusOK, api.DeleteModelResponse{ID: id, DeletedSequences: removed})
}

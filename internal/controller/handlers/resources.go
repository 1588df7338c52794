package handlers

import (
	"net/http"

	"spinframe/pkg/api"
)

// GetResources handles GET /resources.
func (h *Handlers) GetResources(w http.ResponseWriter, r *http.Request) {
	snap, err := h.resources.Snapshot(r.Context())
	if err != nil {
		h.log(r).Error("resource snapshot failed", "error", err)
		h.httpError(w, "Resource snapshot unavailable", http.StatusServiceUnavailable)
		return
	}

	h.respondJson(w, http.StatusOK, api.ResourcesResponse{
		MemoryTotal:    snap.MemoryTotal,
		MemoryUsed:     snap.MemoryUsed,
		MemoryPercent:  snap.MemoryPercent,
		MemoryPressure: string(snap.MemoryPressure),
		DiskPath:       snap.DiskPath,
		DiskTotal:      snap.DiskTotal,
		DiskFree:       snap.DiskFree,
		DiskPressure:   string(snap.DiskPressure),
		TakenAt:        snap.TakenAt.UTC(),
	})
}

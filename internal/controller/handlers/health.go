package handlers

import "net/http"

type readiness struct {
	Status         string `json:"status"`
	MemoryPressure string `json:"memoryPressure,omitempty"`
	DiskPressure   string `json:"diskPressure,omitempty"`
}

// Healthz reports that the process is up.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readyz fails while the model catalog is unreachable. Critical resource pressure
// leaves the controller ready for reads but is surfaced as "degraded", since new
// jobs would be rejected at admission.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Ping(r.Context()); err != nil {
		h.log(r).Warn("readiness check failed", "error", err)
		h.httpError(w, "Catalog unavailable", http.StatusServiceUnavailable)
		return
	}

	out := readiness{Status: "ready"}
	if snap, err := h.resources.Snapshot(r.Context()); err == nil && snap.Critical() {
		out = readiness{
			Status:         "degraded",
			MemoryPressure: string(snap.MemoryPressure),
			DiskPressure:   string(snap.DiskPressure),
		}
	}
	h.respondJson(w, http.StatusOK, out)
}

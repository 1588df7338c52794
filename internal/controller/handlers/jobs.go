package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"spinframe/internal/render"
	"spinframe/internal/scheduler"
	"spinframe/pkg/api"
)

const maxSubmitBody = 1 << 20

// SubmitJob handles POST /jobs.
// It validates the request and hands it to the scheduler. The job runs in the
// background; the response only carries its id.
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SubmitJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.ModelIDs) == 0 {
		h.httpError(w, "modelIds is required", http.StatusBadRequest)
		return
	}

	jobID, err := h.scheduler.Submit(ctx, toSchedulerRequest(req))
	if err != nil {
		var admission *scheduler.AdmissionError
		if errors.As(err, &admission) {
			h.admissionError(w, admission)
			return
		}
		if errors.Is(err, scheduler.ErrShuttingDown) {
			h.httpError(w, "Controller is shutting down", http.StatusServiceUnavailable)
			return
		}
		h.log(r).Error("submit failed", "error", err)
		h.httpError(w, "Failed to submit job", http.StatusInternalServerError)
		return
	}

	h.log(r).Info("job submitted", "job_id", jobID, "models", len(req.ModelIDs))
	h.respondJson(w, http.StatusAccepted, api.SubmitJobResponse{JobID: jobID})
}

func (h *Handlers) admissionError(w http.ResponseWriter, e *scheduler.AdmissionError) {
	code := http.StatusBadRequest
	resp := api.ErrorResponse{
		Error:   e.Message,
		Details: string(e.Reason),
	}
	if e.Reason == scheduler.ReasonResourcePressure {
		code = http.StatusServiceUnavailable
		resp.MemoryPressure = string(e.MemoryPressure)
		resp.DiskPressure = string(e.DiskPressure)
		w.Header().Set("Retry-After", "30")
	}
	resp.Code = strconv.Itoa(code)
	h.respondJson(w, code, resp)
}

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.scheduler.Status(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(job))
}

// ListJobs handles GET /jobs.
// It returns every retained job in submission order together with the counters.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.scheduler.ListJobs()
	resp := api.JobListResponse{
		Jobs:    make([]api.JobResponse, 0, len(jobs)),
		Metrics: toMetricsResponse(h.scheduler.Metrics()),
	}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// CancelJob handles POST /jobs/{id}/cancel.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, err := h.scheduler.Status(id)
	if err != nil {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	if job.Status.Terminal() {
		h.httpError(w, "Job already "+string(job.Status), http.StatusConflict)
		return
	}

	// The job may have finished between Status and Cancel.
	if !h.scheduler.Cancel(id) {
		h.httpError(w, "Job already finished", http.StatusConflict)
		return
	}

	h.log(r).Info("job cancelled", "job_id", id)
	h.respondJson(w, http.StatusOK, api.CancelJobResponse{ID: id, Status: api.StatusStopped})
}

func toSchedulerRequest(req api.SubmitJobRequest) scheduler.Request {
	out := scheduler.Request{
		ModelIDs:  req.ModelIDs,
		Materials: req.Materials,
	}
	if s := req.Settings; s != nil {
		out.Settings.FrameCount = s.ImageCount
		if s.ImageSize != nil {
			out.Settings.Size = render.Size{Width: s.ImageSize.Width, Height: s.ImageSize.Height}
		}
		out.Settings.Formats = s.Formats
		out.Settings.Quality = s.Quality
	}
	return out
}

func toJobResponse(j scheduler.Job) api.JobResponse {
	frames := j.Settings.FrameCount
	resp := api.JobResponse{
		ID:              j.ID,
		Status:          string(j.Status),
		Progress:        j.Progress,
		CurrentModel:    j.CurrentModel,
		CurrentMaterial: j.CurrentMaterial,
		CurrentFrame:    j.CurrentFrame,
		Error:           j.Error,
		ModelIDs:        j.ModelIDs,
		Materials:       j.Materials,
		Settings: api.GenerationSettings{
			ImageCount: &frames,
			ImageSize:  &api.ImageSize{Width: j.Settings.Size.Width, Height: j.Settings.Size.Height},
			Formats:    j.Settings.Formats,
			Quality:    j.Settings.Quality,
		},
		SubmittedAt:         j.SubmittedAt,
		StartedAt:           utc(j.StartedAt),
		FinishedAt:          utc(j.FinishedAt),
		EstimatedCompletion: utc(j.EstimatedCompletion),
		TotalUnits:          j.TotalUnits,
		CompletedUnits:      j.CompletedUnits,
	}
	for _, p := range j.SkippedPairs {
		resp.SkippedPairs = append(resp.SkippedPairs, api.Pair{Model: p.Model, Material: p.Material})
	}
	return resp
}

func toMetricsResponse(m scheduler.Metrics) api.MetricsResponse {
	return api.MetricsResponse{
		TotalJobs:     m.TotalJobs,
		ActiveJobs:    m.ActiveJobs,
		QueueSize:     m.QueueSize,
		CompletedJobs: m.CompletedJobs,
		FailedJobs:    m.FailedJobs,
		StoppedJobs:   m.StoppedJobs,
		SkippedPairs:  m.SkippedPairs,
		UnitsRendered: m.UnitsRendered,
		UnitsRetried:  m.UnitsRetried,
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

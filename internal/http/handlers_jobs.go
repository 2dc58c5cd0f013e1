package httpx

import (
	"errors"
	"net/http"

	"github.com/wanderplan/planner-api/internal/domain/model"
	"github.com/wanderplan/planner-api/internal/service"
)

// JobHandlers provides HTTP handlers for job submission, polling, and the
// planner result callback.
type JobHandlers struct {
	Jobs      *service.JobService
	Callbacks *service.CallbackService
}

// CreateJob accepts a new job and returns 202 immediately; the work itself
// runs asynchronously.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind     model.JobKind `json:"kind"`
		InputRef string        `json:"input_ref"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}

	job, err := h.Jobs.Enqueue(r.Context(), &model.CreateJobRequest{
		Kind:     body.Kind,
		OwnerID:  UserID(r),
		InputRef: body.InputRef,
	})
	if err != nil {
		RenderError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, job)
}

// GetJob returns the full job record.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	job, err := h.Jobs.GetJob(r.Context(), UserID(r), jobID)
	if err != nil {
		RenderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// GetStatus returns the polling view of a job.
func (h *JobHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	status, err := h.Jobs.GetStatus(r.Context(), UserID(r), jobID)
	if err != nil {
		RenderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// GetResult returns the materialized result of a successful job.
func (h *JobHandlers) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	result, err := h.Jobs.GetResult(r.Context(), UserID(r), jobID)
	if err != nil {
		RenderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// Stats returns per-status job counts for one kind.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	kind := model.JobKind(r.PathValue("kind"))

	stats, err := h.Jobs.Stats(r.Context(), kind)
	if err != nil {
		RenderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// Callback receives the planner's verdict for a job. The route is guarded by
// RequireCallbackToken; a 200 here tells the planner to stop retrying, so
// no-op outcomes (duplicate, already finalized) also return 200.
func (h *JobHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return
	}

	var body model.CallbackRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	if err := h.Callbacks.HandleCallback(r.Context(), jobID, &body); err != nil {
		RenderError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

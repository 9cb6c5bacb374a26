// -----------------------------------------------------------------------
// Job handler - REST surface for generation jobs
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// JobHandler serves the /api/jobs endpoints
type JobHandler struct {
	jobs   interfaces.JobService
	logger arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs interfaces.JobService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// CreateJob handles POST /api/jobs
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := h.jobs.Create(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("Job creation rejected")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// GetJob handles GET /api/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
// Params: user_id, status, kind, limit, offset, completed_after and
// completed_before (RFC 3339, bound the completion stamp)
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	opts := interfaces.JobListOptions{
		UserID: r.URL.Query().Get("user_id"),
		Status: models.JobStatus(r.URL.Query().Get("status")),
		Kind:   models.JobKind(r.URL.Query().Get("kind")),
		Limit:  QueryInt(r, "limit", 50),
		Offset: QueryInt(r, "offset", 0),
	}
	if opts.Limit < 1 || opts.Limit > 200 {
		opts.Limit = 50
	}

	for _, bound := range []struct {
		name string
		dst  *time.Time
	}{
		{"completed_after", &opts.CompletedAfter},
		{"completed_before", &opts.CompletedBefore},
	} {
		raw := r.URL.Query().Get(bound.name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteError(w, http.StatusUnprocessableEntity, bound.name+" must be an RFC 3339 timestamp")
			return
		}
		*bound.dst = ts
	}

	jobs, err := h.jobs.List(r.Context(), opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// CancelJob handles POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body) // Empty body means no reason
	}

	job, err := h.jobs.Cancel(r.Context(), id, body.Reason)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// -----------------------------------------------------------------------
// Generation Job - Durable job record for the render pipeline
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobKind classifies the media produced by a job. Only image generation is
// fully supported; video and text are accepted for forward compatibility.
type JobKind string

const (
	JobKindImage JobKind = "image"
	JobKindVideo JobKind = "video"
	JobKindText  JobKind = "text"
)

// BackendKind selects the render backend a job is dispatched to.
type BackendKind string

const (
	BackendPrimary BackendKind = "primary"
	BackendMock    BackendKind = "mock"
)

// MaxPromptLength is the upper bound on prompt text accepted at submission.
const MaxPromptLength = 10000

// LoraModel is a LoRA adjunct applied on top of the checkpoint model.
type LoraModel struct {
	Name          string  `json:"name"`
	StrengthModel float64 `json:"strength_model"`
	StrengthClip  float64 `json:"strength_clip"`
}

// SamplerParams are the scalars that parameterize the render.
type SamplerParams struct {
	Seed        int64   `json:"seed"`
	Steps       int     `json:"steps"`
	CFG         float64 `json:"cfg"`
	SamplerName string  `json:"sampler_name"`
	Scheduler   string  `json:"scheduler"`
	Denoise     float64 `json:"denoise"`
}

// DefaultSamplerParams returns the sampler defaults applied when a submission
// omits sampler params entirely.
func DefaultSamplerParams() SamplerParams {
	return SamplerParams{
		Seed:        0,
		Steps:       20,
		CFG:         7.0,
		SamplerName: "euler",
		Scheduler:   "normal",
		Denoise:     1.0,
	}
}

// Job is the durable record of one generation request.
//
// Invariants:
//   - ContentID is non-zero iff Status == completed
//   - ErrorMessage is non-empty iff Status == failed (cancellation reasons
//     carry a "Cancelled: " prefix)
//   - StartedAt <= CompletedAt when both are set
//   - BackendPromptID is immutable once set
type Job struct {
	ID       uint64      `json:"id" badgerhold:"key"`
	UserID   string      `json:"user_id" badgerholdIndex:"UserID"`
	Kind     JobKind     `json:"job_type"`
	Status   JobStatus   `json:"status" badgerholdIndex:"Status"`
	Prompt   string      `json:"prompt"`
	Negative string      `json:"negative_prompt,omitempty"`
	Backend  BackendKind `json:"backend"`

	CheckpointModel string                 `json:"checkpoint_model,omitempty"`
	LoraModels      []LoraModel            `json:"lora_models,omitempty"`
	Width           int                    `json:"width"`
	Height          int                    `json:"height"`
	BatchSize       int                    `json:"batch_size"`
	Sampler         SamplerParams          `json:"sampler_params"`
	Params          map[string]interface{} `json:"params,omitempty"`

	// BackendPromptID is the backend correlation id returned on submission.
	BackendPromptID string `json:"backend_prompt_id,omitempty"`
	// DispatchToken is the queue token returned on enqueue, used to revoke.
	DispatchToken string `json:"dispatch_token,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	ContentID    uint64 `json:"content_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal returns true if the job reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// IsCancellable returns true if the job may still be cancelled.
func (j *Job) IsCancellable() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

// CanTransition reports whether the state machine permits moving from the
// job's current status to the target status. Terminal states admit no exits.
func (j *Job) CanTransition(to JobStatus) bool {
	switch j.Status {
	case JobStatusPending:
		return to == JobStatusRunning || to == JobStatusCancelled || to == JobStatusFailed
	case JobStatusRunning:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusCancelled
	default:
		return false
	}
}

// MarkRunning transitions the job to running and stamps StartedAt.
func (j *Job) MarkRunning() {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	j.ErrorMessage = ""
}

// MarkCompleted transitions the job to completed with the produced content.
func (j *Job) MarkCompleted(contentID uint64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ContentID = contentID
	j.ErrorMessage = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed transitions the job to failed with a human-readable error.
func (j *Job) MarkFailed(errorMsg string) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.ErrorMessage = errorMsg
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkCancelled transitions the job to cancelled. A non-empty reason is
// recorded in ErrorMessage with a "Cancelled: " prefix.
func (j *Job) MarkCancelled(reason string) {
	now := time.Now().UTC()
	j.Status = JobStatusCancelled
	if reason != "" {
		j.ErrorMessage = "Cancelled: " + reason
	}
	j.CompletedAt = &now
	j.UpdatedAt = now
}

package interfaces

import (
	"context"

	"github.com/ternarybob/atelier/internal/models"
)

// JobService - generation job lifecycle operations
type JobService interface {
	// Create validates the request, persists a pending job and enqueues it.
	Create(ctx context.Context, req *models.GenerationRequest) (*models.Job, error)
	// Process executes one queued job end to end. Safe to call on jobs that
	// have already reached a terminal state (no-op).
	Process(ctx context.Context, jobID uint64) error
	// Cancel stops a pending or running job. Reason may be empty. Terminal
	// jobs reject with ValidationError.
	Cancel(ctx context.Context, jobID uint64, reason string) (*models.Job, error)
	// Start transitions a pending job to running; any other state rejects
	// with ValidationError.
	Start(ctx context.Context, jobID uint64) (*models.Job, error)
	// Complete transitions a running job to completed, verifying the content
	// row exists before linking it.
	Complete(ctx context.Context, jobID, contentID uint64) (*models.Job, error)
	// Fail force-fails a pending or running job with a non-empty message.
	Fail(ctx context.Context, jobID uint64, msg string) error
	Get(ctx context.Context, jobID uint64) (*models.Job, error)
	List(ctx context.Context, opts JobListOptions) ([]*models.Job, error)
}

// HealthProbe - pre-submission worker availability gate
type HealthProbe interface {
	// WorkersAvailable reports whether at least one worker can take a task.
	// A nil inspector configuration always reports true.
	WorkersAvailable(ctx context.Context) bool
}

// NotificationService - best-effort user-facing job outcome messages
type NotificationService interface {
	NotifyJobCompleted(ctx context.Context, job *models.Job) error
	NotifyJobFailed(ctx context.Context, job *models.Job) error
}

// FileOrganizer - moves raw backend outputs into the per-user catalog layout
type FileOrganizer interface {
	// Organize relocates paths under the user/date hierarchy and returns the
	// new locations in the same order.
	Organize(ctx context.Context, userID string, paths []string) ([]string, error)
}

// ThumbnailService - derives preview images for organized outputs
type ThumbnailService interface {
	// GenerateThumbnails is best effort: failures are logged, not returned.
	GenerateThumbnails(ctx context.Context, paths []string)
}
